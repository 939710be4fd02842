package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsieve/internal/domain"
	"docsieve/internal/extract"
	"docsieve/internal/port"
)

const (
	defaultLocalConcurrency = 4

	// presignExpirySecs bounds how long a source-document link stays valid.
	presignExpirySecs = 900
)

// ExtractDocumentInput is the DTO for extracting one document. Document
// carries the raw bytes when the caller already has them; otherwise
// SourceKey names the object-storage location to download from.
type ExtractDocumentInput struct {
	Filename     string
	DocumentType string
	ContentType  string
	SourceKey    string
	Document     []byte
	Schema       json.RawMessage
}

// ExtractOutcome pairs one input with its persisted record or failure.
type ExtractOutcome struct {
	Filename string
	Record   *domain.ExtractionRecord
	Err      error
}

// ExtractionService defines the synchronous document-extraction contract.
type ExtractionService interface {
	ExtractDocument(ctx context.Context, input *ExtractDocumentInput) (*domain.ExtractionRecord, error)
	ExtractAll(ctx context.Context, inputs []*ExtractDocumentInput, concurrency int) []ExtractOutcome
	GetRecord(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error)
	ListRecords(ctx context.Context, status domain.RecordStatus, offset, limit int) ([]domain.ExtractionRecord, int, error)
	RetryExtraction(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error)
	PresignSource(ctx context.Context, id uuid.UUID) (string, error)
}

type extractionService struct {
	records    port.ExtractionRecordRepository
	storage    port.ObjectStorage
	structural port.StructuralParser
	extractor  *extract.Client
	bucket     string
}

// NewExtractionService creates an ExtractionService implementation.
func NewExtractionService(
	records port.ExtractionRecordRepository,
	storage port.ObjectStorage,
	structural port.StructuralParser,
	extractor *extract.Client,
	bucket string,
) ExtractionService {
	return &extractionService{
		records:    records,
		storage:    storage,
		structural: structural,
		extractor:  extractor,
		bucket:     bucket,
	}
}

// ExtractDocument runs the full pipeline for one document and persists the
// outcome. A degraded semantic result is stored as a partial record and
// returned without error; only pipeline failures before any result exists
// return an error.
func (s *extractionService) ExtractDocument(ctx context.Context, input *ExtractDocumentInput) (*domain.ExtractionRecord, error) {
	return s.extractOne(ctx, input, nil)
}

// ExtractAll extracts many local documents concurrently. The structural
// pre-pass runs unbounded since it is local CPU work; the semaphore bounds
// only the remote inference calls.
func (s *extractionService) ExtractAll(ctx context.Context, inputs []*ExtractDocumentInput, concurrency int) []ExtractOutcome {
	if concurrency <= 0 {
		concurrency = defaultLocalConcurrency
	}
	sem := make(chan struct{}, concurrency)

	out := make([]ExtractOutcome, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := s.extractOne(ctx, inputs[i], sem)
			out[i] = ExtractOutcome{Filename: inputs[i].Filename, Record: rec, Err: err}
		}(i)
	}
	wg.Wait()
	return out
}

func (s *extractionService) extractOne(ctx context.Context, input *ExtractDocumentInput, sem chan struct{}) (*domain.ExtractionRecord, error) {
	docBytes := input.Document
	if len(docBytes) == 0 {
		if input.SourceKey == "" {
			return nil, fmt.Errorf("extracting %s: no document bytes and no source key", input.Filename)
		}
		var err error
		docBytes, err = s.storage.Download(ctx, s.bucket, input.SourceKey)
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w: %w", input.SourceKey, err, domain.ErrDownloadFailed)
		}
	} else if input.SourceKey == "" {
		// Archive inline submissions so the record can be retried later
		// without resubmitting bytes. Extraction proceeds either way.
		key := fmt.Sprintf("uploads/%s/%s", uuid.New(), input.Filename)
		_, err := s.storage.Upload(ctx, port.StoreInput{
			Bucket:      s.bucket,
			Key:         key,
			Body:        bytes.NewReader(docBytes),
			ContentType: input.ContentType,
			Size:        int64(len(docBytes)),
		})
		if err != nil {
			log.Printf("extractionService.extractOne: failed to archive %s: %v", input.Filename, err)
		} else {
			input.SourceKey = key
		}
	}

	structure, err := s.structural.ParseBytes(ctx, docBytes, input.ContentType)
	if err != nil {
		rec := s.newRecord(input)
		rec.Status = domain.RecordStatusFailed
		rec.ErrorText = fmt.Sprintf("structural parse: %v", err)
		if cerr := s.records.Create(ctx, rec); cerr != nil {
			log.Printf("extractionService.extractOne: failed to persist failed record for %s: %v", input.Filename, cerr)
		}
		return rec, fmt.Errorf("structural parse of %s: %w", input.Filename, err)
	}

	if sem != nil {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-sem }()
	}

	result, err := s.extractor.Extract(ctx, &extract.Request{
		Structure:    structure,
		Document:     docBytes,
		ContentType:  input.ContentType,
		Filename:     input.Filename,
		DocumentType: input.DocumentType,
		Schema:       input.Schema,
	})
	if err != nil {
		var pe *extract.PartialError
		if errors.As(err, &pe) {
			rec, perr := s.persistResult(ctx, input, pe.Result, domain.RecordStatusPartial, pe.Cause.Error())
			if perr != nil {
				return nil, perr
			}
			log.Printf("extractionService.extractOne: stored partial record %s for %s: %v", rec.ID, input.Filename, pe.Cause)
			return rec, nil
		}
		return nil, fmt.Errorf("extracting %s: %w", input.Filename, err)
	}

	status := domain.RecordStatusCompleted
	errText := ""
	if verr := validateAgainstSchema(input.Schema, result.Data); verr != nil {
		// The provider returned well-formed JSON that does not satisfy the
		// declared document schema. Keep the data but flag it for review.
		status = domain.RecordStatusPartial
		errText = verr.Error()
		log.Printf("extractionService.extractOne: %s failed schema validation: %v", input.Filename, verr)
	}

	rec, perr := s.persistResult(ctx, input, result, status, errText)
	if perr != nil {
		return nil, perr
	}
	log.Printf("extractionService.extractOne: extracted %s via %s (record %s)", input.Filename, result.Metadata.Method, rec.ID)
	return rec, nil
}

func (s *extractionService) newRecord(input *ExtractDocumentInput) *domain.ExtractionRecord {
	now := time.Now().UTC()
	return &domain.ExtractionRecord{
		ID:           uuid.New(),
		Filename:     input.Filename,
		DocumentType: input.DocumentType,
		SourceKey:    input.SourceKey,
		Attempts:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *extractionService) persistResult(ctx context.Context, input *ExtractDocumentInput, result *domain.ExtractionResult, status domain.RecordStatus, errText string) (*domain.ExtractionRecord, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("serializing extraction result for %s: %w", input.Filename, err)
	}

	rec := s.newRecord(input)
	rec.Method = result.Metadata.Method
	rec.Model = result.Metadata.Model
	rec.Data = data
	rec.Status = status
	rec.ErrorText = errText

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting record for %s: %w", input.Filename, err)
	}
	return rec, nil
}

func (s *extractionService) GetRecord(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	return s.records.GetByID(ctx, id)
}

func (s *extractionService) ListRecords(ctx context.Context, status domain.RecordStatus, offset, limit int) ([]domain.ExtractionRecord, int, error) {
	return s.records.ListByStatus(ctx, status, offset, limit)
}

// PresignSource returns a time-limited download URL for a record's archived
// source document.
func (s *extractionService) PresignSource(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.SourceKey == "" {
		return "", fmt.Errorf("record %s has no archived source document: %w", id, domain.ErrUnprocessable)
	}
	return s.storage.PresignDownload(ctx, s.bucket, rec.SourceKey, presignExpirySecs)
}

// RetryExtraction re-runs the pipeline for a stored record whose source
// document is still in object storage, bumping the attempt counter.
func (s *extractionService) RetryExtraction(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.SourceKey == "" {
		return nil, fmt.Errorf("record %s has no source key: %w", id, domain.ErrUnprocessable)
	}
	if err := s.records.IncrementAttempts(ctx, id); err != nil {
		return nil, fmt.Errorf("incrementing attempts for %s: %w", id, err)
	}

	docBytes, err := s.storage.Download(ctx, s.bucket, rec.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w: %w", rec.SourceKey, err, domain.ErrDownloadFailed)
	}

	contentType := "application/pdf"
	structure, err := s.structural.ParseBytes(ctx, docBytes, contentType)
	if err != nil {
		return nil, fmt.Errorf("structural parse of %s: %w", rec.Filename, err)
	}

	result, err := s.extractor.Extract(ctx, &extract.Request{
		Structure:    structure,
		Document:     docBytes,
		ContentType:  contentType,
		Filename:     rec.Filename,
		DocumentType: rec.DocumentType,
	})

	now := time.Now().UTC()
	rec.UpdatedAt = now
	rec.Attempts++
	if err != nil {
		var pe *extract.PartialError
		if !errors.As(err, &pe) {
			return nil, fmt.Errorf("re-extracting %s: %w", rec.Filename, err)
		}
		result = pe.Result
		rec.Status = domain.RecordStatusPartial
		rec.ErrorText = pe.Cause.Error()
	} else {
		rec.Status = domain.RecordStatusCompleted
		rec.ErrorText = ""
	}

	data, merr := json.Marshal(result)
	if merr != nil {
		return nil, fmt.Errorf("serializing extraction result for %s: %w", rec.Filename, merr)
	}
	rec.Method = result.Metadata.Method
	rec.Model = result.Metadata.Model
	rec.Data = data

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating record %s: %w", rec.ID, err)
	}
	return rec, nil
}
