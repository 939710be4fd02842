package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

const (
	// DefaultPollTimeout is the hard wall-clock deadline for one job.
	DefaultPollTimeout = 24 * time.Hour
	// DefaultPollInterval is the sleep between status fetches.
	DefaultPollInterval = 60 * time.Second
)

// Poll fetches the job state until it turns terminal. Exceeding the
// deadline yields domain.ErrPollTimeout, which is fatal to that job and
// distinct from provider errors. Poll itself does not retry transient read
// errors; callers wanting that wrap the call in the retry engine.
func Poll(ctx context.Context, api port.BatchAPI, jobName string, timeout, interval time.Duration) (*port.BatchJobState, error) {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	for {
		state, err := api.GetJob(ctx, jobName)
		if err != nil {
			return nil, fmt.Errorf("fetching batch job %s: %w", jobName, err)
		}
		if state.Status != domain.BatchJobStatusPending {
			return state, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: job %s still pending after %s", domain.ErrPollTimeout, jobName, timeout)
		}
		// The last sleep is capped at the remaining budget so the job gets
		// one final status check right at the deadline.
		wait := interval
		if remaining < wait {
			wait = remaining
		}

		log.Printf("batchPoller.Poll: job %s still pending, next check in %s", jobName, wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}
