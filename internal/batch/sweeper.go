package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

// Processor consumes the response items of one terminal-success job. It
// creates per-item records, updates the descriptor's counters, and
// propagates aggregates to the source job when one is linked.
type Processor func(ctx context.Context, job *domain.BatchJob, items []domain.BatchResponseItem) error

// SweeperConfig holds settings for the sweep worker.
type SweeperConfig struct {
	Interval time.Duration
	// Domain optionally restricts the sweep to one batch domain.
	Domain *domain.BatchDomain
}

// SweepSummary reports the outcome of one sweep pass. Per-job errors are
// captured here instead of aborting the pass.
type SweepSummary struct {
	Processed int
	Failed    int
	Skipped   int
	Errors    map[string]string
}

// Sweeper periodically visits every pending batch job in the tracking
// store, dispatching terminal-success jobs to their domain processor and
// persisting terminal failures. One failing job never aborts the sweep.
type Sweeper struct {
	jobs       port.BatchJobRepository
	api        port.BatchAPI
	files      port.FileStore
	processors map[domain.BatchDomain]Processor
	cfg        SweeperConfig
}

// NewSweeper creates a job sweep orchestrator.
func NewSweeper(jobs port.BatchJobRepository, api port.BatchAPI, files port.FileStore, processors map[domain.BatchDomain]Processor, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		jobs:       jobs,
		api:        api,
		files:      files,
		processors: processors,
		cfg:        cfg,
	}
}

// Start runs the periodic sweep until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("sweeper: started (interval=%s)", s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("sweeper: shutting down")
			return
		case <-ticker.C:
			summary, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Printf("sweeper: listing pending jobs failed: %v", err)
				continue
			}
			if summary.Processed+summary.Failed > 0 {
				log.Printf("sweeper: pass complete (processed=%d failed=%d skipped=%d)",
					summary.Processed, summary.Failed, summary.Skipped)
			}
		}
	}
}

// SweepOnce performs a single idempotent pass over all pending jobs. The
// returned error covers only the pending-job listing; everything past that
// point is captured per-job in the summary.
func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepSummary, error) {
	pending, err := s.jobs.ListPending(ctx, s.cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("listing pending batch jobs: %w", err)
	}

	summary := &SweepSummary{Errors: make(map[string]string)}
	for i := range pending {
		job := &pending[i]
		outcome, err := s.sweepJob(ctx, job)
		if err != nil {
			log.Printf("sweeper.SweepOnce: job %s (%s): %v", job.ID, job.ProviderJobName, err)
			summary.Errors[job.ID.String()] = err.Error()
			continue
		}
		switch outcome {
		case sweptProcessed:
			summary.Processed++
		case sweptFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

type sweepOutcome int

const (
	sweptSkipped sweepOutcome = iota
	sweptProcessed
	sweptFailed
)

func (s *Sweeper) sweepJob(ctx context.Context, job *domain.BatchJob) (sweepOutcome, error) {
	state, err := s.api.GetJob(ctx, job.ProviderJobName)
	if err != nil {
		return sweptSkipped, fmt.Errorf("fetching provider state: %w", err)
	}

	switch state.Status {
	case domain.BatchJobStatusPending:
		return sweptSkipped, nil

	case domain.BatchJobStatusSucceeded:
		items, err := s.collectItems(ctx, job, state)
		if err != nil {
			return sweptSkipped, err
		}
		for _, it := range items {
			if _, known := job.RequestMetadata[it.Key]; !known {
				// A key the job never submitted is a bug upstream, never a
				// condition worth retrying. Mark the job failed so the sweep
				// does not re-fetch it forever.
				reason := fmt.Sprintf("response key %q not present in job request metadata", it.Key)
				if err := s.failJob(ctx, job, domain.BatchJobStatusFailed, reason); err != nil {
					return sweptSkipped, err
				}
				return sweptSkipped, fmt.Errorf("%s", reason)
			}
		}
		proc, ok := s.processors[job.Domain]
		if !ok {
			return sweptSkipped, fmt.Errorf("no processor registered for batch domain %q", job.Domain)
		}
		if err := proc(ctx, job, items); err != nil {
			return sweptSkipped, fmt.Errorf("processing results: %w", err)
		}
		return sweptProcessed, nil

	default:
		if err := s.failJob(ctx, job, state.Status, state.Error); err != nil {
			return sweptSkipped, err
		}
		return sweptFailed, nil
	}
}

// failJob stamps the descriptor terminal with the given status and error
// text so later sweep passes no longer pick it up.
func (s *Sweeper) failJob(ctx context.Context, job *domain.BatchJob, status domain.BatchJobStatus, errText string) error {
	now := time.Now().UTC()
	job.Status = status
	job.ErrorText = errText
	job.CompletedAt = &now
	if err := s.jobs.UpdateStatus(ctx, job); err != nil {
		return fmt.Errorf("persisting terminal failure: %w", err)
	}
	log.Printf("sweeper.sweepJob: job %s terminal %s: %s", job.ID, status, errText)
	return nil
}

// collectItems recovers the per-request responses of a terminal-success
// job from whichever transport it used.
func (s *Sweeper) collectItems(ctx context.Context, job *domain.BatchJob, state *port.BatchJobState) ([]domain.BatchResponseItem, error) {
	if state.ResultFileName != "" {
		data, err := s.files.Download(ctx, state.ResultFileName)
		if err != nil {
			return nil, fmt.Errorf("downloading results file %s: %w", state.ResultFileName, err)
		}
		return ParseResultsFile(data), nil
	}
	return ParseInline(state.InlineResults, job.KeyOrder), nil
}
