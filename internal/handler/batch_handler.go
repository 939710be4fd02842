package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docsieve/internal/batch"
	"docsieve/internal/domain"
	"docsieve/internal/service"
)

// BatchHandler handles batch job endpoints.
type BatchHandler struct {
	batchService service.BatchService
	sweeper      *batch.Sweeper
	pollTimeout  time.Duration
	pollInterval time.Duration
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batchService service.BatchService, sweeper *batch.Sweeper, pollTimeout, pollInterval time.Duration) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
		sweeper:      sweeper,
		pollTimeout:  pollTimeout,
		pollInterval: pollInterval,
	}
}

// Submit handles POST /api/v1/batches. Documents are referenced by their
// object-storage keys; the provider requests are built server-side.
func (h *BatchHandler) Submit(c *gin.Context) {
	var req struct {
		Domain      domain.BatchDomain `json:"domain" binding:"required"`
		DisplayName string             `json:"display_name"`
		Schema      json.RawMessage    `json:"schema"`
		SourceJobID *uuid.UUID         `json:"source_job_id"`
		Documents   []struct {
			Key          string     `json:"key" binding:"required"`
			Filename     string     `json:"filename" binding:"required"`
			ContentType  string     `json:"content_type" binding:"required"`
			DocumentType string     `json:"document_type"`
			SourceKey    string     `json:"source_key" binding:"required"`
			SourceID     *uuid.UUID `json:"source_id"`
		} `json:"documents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "domain and documents are required")
		return
	}
	if req.Domain != domain.BatchDomainValidation && req.Domain != domain.BatchDomainExtraction {
		RespondError(c, http.StatusBadRequest, "INVALID_DOMAIN", "domain must be 'validation' or 'extraction'")
		return
	}

	input := &service.SubmitBatchInput{
		Domain:      req.Domain,
		DisplayName: req.DisplayName,
		Schema:      req.Schema,
		SourceJobID: req.SourceJobID,
	}
	for _, d := range req.Documents {
		input.Documents = append(input.Documents, service.BatchDocumentInput{
			Key:          d.Key,
			Filename:     d.Filename,
			ContentType:  d.ContentType,
			DocumentType: d.DocumentType,
			SourceKey:    d.SourceKey,
			SourceID:     d.SourceID,
		})
	}

	job, err := h.batchService.SubmitBatch(c.Request.Context(), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, job)
}

// GetJob handles GET /api/v1/batches/:id
func (h *BatchHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid job ID")
		return
	}

	job, err := h.batchService.GetJob(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, job)
}

// Poll handles POST /api/v1/batches/:id/poll. It blocks until the provider
// job turns terminal or the configured deadline passes; most callers should
// rely on the background sweep instead.
func (h *BatchHandler) Poll(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid job ID")
		return
	}

	state, err := h.batchService.PollJob(c.Request.Context(), id, h.pollTimeout, h.pollInterval)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, state)
}

// Sweep handles POST /api/v1/batches/sweep, running one sweep pass
// immediately instead of waiting for the worker's next tick.
func (h *BatchHandler) Sweep(c *gin.Context) {
	summary, err := h.sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, summary)
}
