package extract

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"time"

	"docsieve/internal/inference"
)

// RetryPolicy controls the classification-aware retry wrapper. A single
// policy value is stateless and safe to share across calls.
type RetryPolicy struct {
	MaxRetries              int
	BaseDelay               time.Duration
	MaxJitter               time.Duration
	RetryableStatusCodes    map[int]struct{}
	NonRetryableStatusCodes map[int]struct{}

	// RetryableErrors is the caller-declared fallback set, consulted only
	// when neither the status code nor the message classifies the error.
	RetryableErrors []error
}

// DefaultRetryPolicy returns the standard policy: 5 retries (6 attempts),
// 1s base delay doubling per attempt, up to 1s of uniform jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxJitter:  time.Second,
		RetryableStatusCodes: map[int]struct{}{
			429: {}, 500: {}, 503: {},
		},
		NonRetryableStatusCodes: map[int]struct{}{
			400: {}, 401: {}, 403: {}, 404: {}, 422: {},
		},
	}
}

// transientSubstrings mark connectivity failures that carry no status code.
var transientSubstrings = []string{
	"timed out",
	"timeout",
	"connection reset",
	"connection refused",
	"connection",
	"network",
}

// shouldRetry classifies err. Status codes win over message inspection,
// which wins over the caller-declared retryable set.
func (p RetryPolicy) shouldRetry(err error) bool {
	if code, ok := inference.StatusOf(err); ok {
		if _, nonRetryable := p.NonRetryableStatusCodes[code]; nonRetryable {
			return false
		}
		if _, retryable := p.RetryableStatusCodes[code]; retryable {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	for _, target := range p.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// backoffDelay returns the sleep before retry n (0-indexed):
// BaseDelay * 2^n plus uniform jitter in [0, MaxJitter].
func (p RetryPolicy) backoffDelay(n int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<n)
	if p.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return delay
}

// Do runs op, retrying transient failures per the policy. Non-retryable
// errors propagate immediately; after the final failed attempt the last
// error is returned unchanged. The sleep between attempts aborts promptly
// on context cancellation.
func Do[T any](ctx context.Context, policy RetryPolicy, opName string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.backoffDelay(attempt - 1)
			log.Printf("retry: %s attempt %d/%d failed, retrying in %s: %v",
				opName, attempt, policy.MaxRetries+1, delay, lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !policy.shouldRetry(err) {
			return zero, err
		}
	}

	log.Printf("retry: %s exhausted %d attempts, giving up: %v", opName, policy.MaxRetries+1, lastErr)
	return zero, lastErr
}
