package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BBox is the bounding box of one layout element, in page coordinates.
type BBox struct {
	Page int     `json:"page"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

// TableExtract is one table recovered by the structural pre-pass.
type TableExtract struct {
	Page    int        `json:"page"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// DocumentStructure is the output of the local structural pre-pass.
// It is produced once per document and never mutated afterwards.
type DocumentStructure struct {
	Markdown      string          `json:"markdown"`
	Tables        []TableExtract  `json:"tables"`
	BoundingBoxes map[string]BBox `json:"bounding_boxes"`
	ElementCount  int             `json:"element_count"`
	QualityScore  float64         `json:"quality_score"`
}

// ExtractionMetadata records how a result was obtained.
type ExtractionMetadata struct {
	Method       ExtractionMethod `json:"method"`
	Model        string           `json:"model"`
	QualityScore float64          `json:"quality_score"`
	CacheHit     bool             `json:"cache_hit"`
	CachedTokens int32            `json:"cached_tokens"`
	TotalTokens  int32            `json:"total_tokens"`
	Reason       string           `json:"reason,omitempty"`
}

// ExtractionResult is the shaped output of one document extraction.
// Tables and BoundingBoxes always come from the structural pre-pass; the
// semantic JSON in Data never overrides them.
type ExtractionResult struct {
	Data          json.RawMessage    `json:"data"`
	Tables        []TableExtract     `json:"tables"`
	BoundingBoxes map[string]BBox    `json:"bounding_boxes"`
	Metadata      ExtractionMetadata `json:"metadata"`
}

// ExtractionRecord is the persisted outcome of one document extraction.
type ExtractionRecord struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	Filename     string           `db:"filename" json:"filename"`
	DocumentType string           `db:"document_type" json:"document_type"`
	SourceKey    string           `db:"source_key" json:"source_key"`
	Method       ExtractionMethod `db:"method" json:"method"`
	Model        string           `db:"model" json:"model"`
	Data         json.RawMessage  `db:"data" json:"data"`
	Status       RecordStatus     `db:"status" json:"status"`
	ErrorText    string           `db:"error_text" json:"error_text"`
	Attempts     int              `db:"attempts" json:"attempts"`
	BatchJobID   *uuid.UUID       `db:"batch_job_id" json:"batch_job_id"`
	BatchKey     string           `db:"batch_key" json:"batch_key,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// BatchRequestMeta is the caller-supplied metadata tagged onto one batch
// request item, stored in the job descriptor keyed by correlation key.
type BatchRequestMeta struct {
	Filename   string     `json:"filename"`
	DomainType string     `json:"domain_type"`
	SourceID   *uuid.UUID `json:"source_id,omitempty"`
}

// BatchJob is the descriptor row for one provider batch job. It is created
// once at submission and mutated only by the poller/sweeper; once Status
// leaves pending the row is terminal.
type BatchJob struct {
	ID                uuid.UUID                   `db:"id" json:"id"`
	ProviderJobName   string                      `db:"provider_job_name" json:"provider_job_name"`
	Domain            BatchDomain                 `db:"domain" json:"domain"`
	Model             string                      `db:"model" json:"model"`
	Status            BatchJobStatus              `db:"status" json:"status"`
	TotalRequests     int                         `db:"total_requests" json:"total_requests"`
	CompletedRequests int                         `db:"completed_requests" json:"completed_requests"`
	FailedRequests    int                         `db:"failed_requests" json:"failed_requests"`
	RequestMetadata   map[string]BatchRequestMeta `db:"-" json:"request_metadata"`
	KeyOrder          []string                    `db:"-" json:"key_order,omitempty"`
	SourceJobID       *uuid.UUID                  `db:"source_job_id" json:"source_job_id"`
	ErrorText         string                      `db:"error_text" json:"error_text"`
	CompletedAt       *time.Time                  `db:"completed_at" json:"completed_at"`
	CreatedAt         time.Time                   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                   `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the job has left the pending state.
func (j *BatchJob) IsTerminal() bool {
	return j.Status != BatchJobStatusPending
}

// BatchResponseItem is one per-request response recovered from a terminal
// batch job. Exactly one of ResponseText and Error is populated.
type BatchResponseItem struct {
	Key          string `json:"key"`
	ResponseText string `json:"response_text,omitempty"`
	Error        string `json:"error,omitempty"`
}
