package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

// InlineByteLimit is the aggregate serialized-request size above which a
// job is submitted by file reference instead of inline.
const InlineByteLimit = 20 << 20 // 20 MiB

// fileLine is one JSONL line of a file-based submission. The key is
// repeated at the top level so responses can be correlated without any
// ordering guarantee.
type fileLine struct {
	Key     string            `json:"key"`
	Request port.BatchRequest `json:"request"`
}

// Submitter chooses the batch transport by payload size and creates the
// provider job plus its descriptor row.
type Submitter struct {
	api   port.BatchAPI
	files port.FileStore
	model string
}

// NewSubmitter creates a batch submitter.
func NewSubmitter(api port.BatchAPI, files port.FileStore, model string) *Submitter {
	return &Submitter{api: api, files: files, model: model}
}

// Submit serializes the requests, picks inline or file-based transport, and
// creates the provider job. The returned descriptor is pending and not yet
// persisted; the caller stores it in the job-tracking store.
func (s *Submitter) Submit(ctx context.Context, batchDomain domain.BatchDomain, displayName string, items []Item, sourceJobID *uuid.UUID) (*domain.BatchJob, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no requests to submit")
	}

	payloads := make([][]byte, len(items))
	total := 0
	for i, it := range items {
		b, err := json.Marshal(it.Request)
		if err != nil {
			return nil, fmt.Errorf("serializing request %q: %w", it.Key, err)
		}
		payloads[i] = b
		total += len(b)
	}

	var (
		providerName string
		keyOrder     []string
		err          error
	)
	if total <= InlineByteLimit {
		// Inline transport: submission order is preserved end-to-end and is
		// the only correlation mechanism.
		requests := make([]port.BatchRequest, len(items))
		keyOrder = make([]string, len(items))
		for i, it := range items {
			requests[i] = it.Request
			keyOrder[i] = it.Key
		}
		providerName, err = s.api.CreateInline(ctx, s.model, displayName, requests)
		if err != nil {
			return nil, fmt.Errorf("creating inline batch: %w", err)
		}
		log.Printf("batchSubmitter.Submit: created inline job %s (%d requests, %d bytes)", providerName, len(items), total)
	} else {
		providerName, err = s.submitByFile(ctx, displayName, items)
		if err != nil {
			return nil, err
		}
		log.Printf("batchSubmitter.Submit: created file-based job %s (%d requests, %d bytes)", providerName, len(items), total)
	}

	now := time.Now().UTC()
	job := &domain.BatchJob{
		ID:              uuid.New(),
		ProviderJobName: providerName,
		Domain:          batchDomain,
		Model:           s.model,
		Status:          domain.BatchJobStatusPending,
		TotalRequests:   len(items),
		RequestMetadata: make(map[string]domain.BatchRequestMeta, len(items)),
		KeyOrder:        keyOrder,
		SourceJobID:     sourceJobID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, it := range items {
		job.RequestMetadata[it.Key] = it.Meta
	}
	return job, nil
}

// submitByFile writes one JSON object per line to a temporary file, uploads
// it to the provider's file store, and submits the job by reference. The
// temporary file is removed regardless of outcome.
func (s *Submitter) submitByFile(ctx context.Context, displayName string, items []Item) (string, error) {
	tmp, err := os.CreateTemp("", "docsieve-batch-*.jsonl")
	if err != nil {
		return "", fmt.Errorf("creating batch temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if rerr := os.Remove(tmpPath); rerr != nil {
			log.Printf("batchSubmitter.submitByFile: failed to remove temp file %s: %v", tmpPath, rerr)
		}
	}()

	enc := json.NewEncoder(tmp)
	for _, it := range items {
		if err := enc.Encode(fileLine{Key: it.Key, Request: it.Request}); err != nil {
			tmp.Close()
			return "", fmt.Errorf("writing batch line for %q: %w", it.Key, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing batch temp file: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("reading batch temp file: %w", err)
	}

	ref, err := s.files.Upload(ctx, data, "application/jsonl", displayName+"-input")
	if err != nil {
		return "", fmt.Errorf("uploading batch input file: %w", err)
	}

	providerName, err := s.api.CreateFromFile(ctx, s.model, displayName, ref.Name)
	if err != nil {
		return "", fmt.Errorf("creating file-based batch: %w", err)
	}
	return providerName, nil
}
