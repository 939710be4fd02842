package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"docsieve/internal/batch"
	"docsieve/internal/domain"
	"docsieve/internal/extract"
	"docsieve/internal/port"
)

// BatchDocumentInput is one document destined for a batch job.
type BatchDocumentInput struct {
	Key          string
	Filename     string
	ContentType  string
	DocumentType string
	SourceKey    string
	Document     []byte
	SourceID     *uuid.UUID
}

// SubmitBatchInput is the DTO for submitting one batch job.
type SubmitBatchInput struct {
	Domain      domain.BatchDomain
	DisplayName string
	Schema      json.RawMessage
	Documents   []BatchDocumentInput
	SourceJobID *uuid.UUID
}

// validationVerdict is the JSON shape the validation domain's prompt asks
// the model to return.
type validationVerdict struct {
	Valid  bool `json:"valid"`
	Issues []struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	} `json:"issues"`
}

// BatchService defines the batch submission and result-processing contract.
type BatchService interface {
	SubmitBatch(ctx context.Context, input *SubmitBatchInput) (*domain.BatchJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error)
	PollJob(ctx context.Context, id uuid.UUID, timeout, interval time.Duration) (*port.BatchJobState, error)
	ProcessValidationResults(ctx context.Context, job *domain.BatchJob, items []domain.BatchResponseItem) error
	ProcessExtractionResults(ctx context.Context, job *domain.BatchJob, items []domain.BatchResponseItem) error
	Processors() map[domain.BatchDomain]batch.Processor
}

type batchService struct {
	jobs      port.BatchJobRepository
	records   port.ExtractionRecordRepository
	storage   port.ObjectStorage
	api       port.BatchAPI
	builder   *batch.Builder
	submitter *batch.Submitter
	bucket    string
	model     string
}

// NewBatchService creates a BatchService implementation.
func NewBatchService(
	jobs port.BatchJobRepository,
	records port.ExtractionRecordRepository,
	storage port.ObjectStorage,
	api port.BatchAPI,
	files port.FileStore,
	bucket string,
	model string,
) BatchService {
	return &batchService{
		jobs:      jobs,
		records:   records,
		storage:   storage,
		api:       api,
		builder:   batch.NewBuilder(files),
		submitter: batch.NewSubmitter(api, files, model),
		bucket:    bucket,
		model:     model,
	}
}

// Processors returns the domain-to-processor dispatch table for the sweeper.
func (s *batchService) Processors() map[domain.BatchDomain]batch.Processor {
	return map[domain.BatchDomain]batch.Processor{
		domain.BatchDomainExtraction: s.ProcessExtractionResults,
		domain.BatchDomainValidation: s.ProcessValidationResults,
	}
}

// SubmitBatch builds provider requests for every document, submits the job,
// and persists its descriptor.
func (s *batchService) SubmitBatch(ctx context.Context, input *SubmitBatchInput) (*domain.BatchJob, error) {
	if len(input.Documents) == 0 {
		return nil, fmt.Errorf("batch has no documents")
	}

	builds := make([]batch.BuildInput, 0, len(input.Documents))
	for _, doc := range input.Documents {
		docBytes := doc.Document
		if len(docBytes) == 0 {
			if doc.SourceKey == "" {
				return nil, fmt.Errorf("document %q has no bytes and no source key", doc.Filename)
			}
			var err error
			docBytes, err = s.storage.Download(ctx, s.bucket, doc.SourceKey)
			if err != nil {
				return nil, fmt.Errorf("downloading %s: %w: %w", doc.SourceKey, err, domain.ErrDownloadFailed)
			}
		}

		var prompt, instruction string
		switch input.Domain {
		case domain.BatchDomainValidation:
			prompt = extract.BuildValidationPrompt(doc.DocumentType, "")
			instruction = extract.SystemInstructionFor(domain.CacheDomainSecondary)
		default:
			prompt = extract.BuildVisionPrompt(doc.DocumentType)
			instruction = extract.SystemInstructionFor(domain.CacheDomainPrimary)
		}

		builds = append(builds, batch.BuildInput{
			Key:               doc.Key,
			Document:          docBytes,
			ContentType:       doc.ContentType,
			Filename:          doc.Filename,
			DomainType:        doc.DocumentType,
			SourceID:          doc.SourceID,
			Prompt:            prompt,
			SystemInstruction: instruction,
			Schema:            input.Schema,
		})
	}

	items, err := s.builder.Build(ctx, builds)
	if err != nil {
		return nil, fmt.Errorf("building batch requests: %w", err)
	}

	job, err := s.submitter.Submit(ctx, input.Domain, input.DisplayName, items, input.SourceJobID)
	if err != nil {
		return nil, fmt.Errorf("submitting batch: %w", err)
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persisting batch job %s: %w", job.ProviderJobName, err)
	}
	log.Printf("batchService.SubmitBatch: submitted %s job %s with %d requests", job.Domain, job.ID, job.TotalRequests)
	return job, nil
}

func (s *batchService) GetJob(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// PollJob blocks until the provider job reaches a terminal state or the
// deadline passes. Result processing stays with the sweeper; this exists
// for callers that need to wait on one specific job.
func (s *batchService) PollJob(ctx context.Context, id uuid.UUID, timeout, interval time.Duration) (*port.BatchJobState, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrBatchJobTerminal)
	}
	return batch.Poll(ctx, s.api, job.ProviderJobName, timeout, interval)
}

// ProcessExtractionResults creates one extraction record per response item
// and finalizes the job descriptor. The sweep replays the whole processor
// when an earlier pass failed partway, so items whose correlation key is
// already persisted for this job are skipped, with their prior outcome
// still counted toward the final totals.
func (s *batchService) ProcessExtractionResults(ctx context.Context, job *domain.BatchJob, items []domain.BatchResponseItem) error {
	existing, err := s.records.ListByBatchJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("listing records for job %s: %w", job.ID, err)
	}
	persisted := make(map[string]domain.RecordStatus, len(existing))
	for _, rec := range existing {
		persisted[rec.BatchKey] = rec.Status
	}

	completed, failed := 0, 0
	for _, item := range items {
		if status, ok := persisted[item.Key]; ok {
			if status == domain.RecordStatusCompleted {
				completed++
			} else {
				failed++
			}
			continue
		}

		meta := job.RequestMetadata[item.Key]
		now := time.Now().UTC()
		rec := &domain.ExtractionRecord{
			ID:           uuid.New(),
			Filename:     meta.Filename,
			DocumentType: meta.DomainType,
			Method:       domain.MethodVisionFallback,
			Model:        job.Model,
			Attempts:     1,
			BatchJobID:   &job.ID,
			BatchKey:     item.Key,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if item.Error != "" {
			rec.Status = domain.RecordStatusFailed
			rec.ErrorText = item.Error
			failed++
		} else if !json.Valid([]byte(item.ResponseText)) {
			rec.Status = domain.RecordStatusFailed
			rec.ErrorText = "model returned malformed JSON"
			failed++
		} else {
			rec.Data = json.RawMessage(item.ResponseText)
			rec.Status = domain.RecordStatusCompleted
			completed++
		}

		if err := s.records.Create(ctx, rec); err != nil {
			return fmt.Errorf("persisting record for key %q: %w", item.Key, err)
		}
	}
	return s.finalizeJob(ctx, job, completed, failed)
}

// ProcessValidationResults applies each validation verdict to its source
// record and finalizes the job descriptor.
func (s *batchService) ProcessValidationResults(ctx context.Context, job *domain.BatchJob, items []domain.BatchResponseItem) error {
	completed, failed := 0, 0
	for _, item := range items {
		meta := job.RequestMetadata[item.Key]

		if item.Error != "" {
			failed++
			log.Printf("batchService.ProcessValidationResults: item %q failed: %s", item.Key, item.Error)
			continue
		}

		var verdict validationVerdict
		if err := json.Unmarshal([]byte(item.ResponseText), &verdict); err != nil {
			failed++
			log.Printf("batchService.ProcessValidationResults: item %q returned malformed verdict: %v", item.Key, err)
			continue
		}
		completed++

		if meta.SourceID == nil {
			continue
		}
		rec, err := s.records.GetByID(ctx, *meta.SourceID)
		if err != nil {
			return fmt.Errorf("loading source record %s for key %q: %w", meta.SourceID, item.Key, err)
		}
		if !verdict.Valid {
			rec.Status = domain.RecordStatusPartial
			issues, _ := json.Marshal(verdict.Issues)
			rec.ErrorText = fmt.Sprintf("validation issues: %s", issues)
			rec.UpdatedAt = time.Now().UTC()
			if err := s.records.Update(ctx, rec); err != nil {
				return fmt.Errorf("flagging record %s: %w", rec.ID, err)
			}
		}
	}
	return s.finalizeJob(ctx, job, completed, failed)
}

// finalizeJob stamps the descriptor terminal-success with its counters and
// propagates aggregate counts to the source job if one is linked.
func (s *batchService) finalizeJob(ctx context.Context, job *domain.BatchJob, completed, failed int) error {
	now := time.Now().UTC()
	job.CompletedRequests = completed
	job.FailedRequests = failed
	job.Status = domain.BatchJobStatusSucceeded
	job.CompletedAt = &now
	job.UpdatedAt = now
	if err := s.jobs.UpdateStatus(ctx, job); err != nil {
		return fmt.Errorf("finalizing job %s: %w", job.ID, err)
	}

	if job.SourceJobID == nil {
		return nil
	}
	parent, err := s.jobs.GetByID(ctx, *job.SourceJobID)
	if err != nil {
		return fmt.Errorf("loading source job %s: %w", job.SourceJobID, err)
	}
	parent.CompletedRequests += completed
	parent.FailedRequests += failed
	parent.UpdatedAt = now
	if err := s.jobs.UpdateStatus(ctx, parent); err != nil {
		return fmt.Errorf("propagating counts to source job %s: %w", parent.ID, err)
	}
	return nil
}
