package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docsieve/internal/domain"
	"docsieve/internal/service"
)

// ExtractionHandler handles synchronous document-extraction endpoints.
type ExtractionHandler struct {
	extractionService service.ExtractionService
	maxFileSizeMB     int64
	concurrency       int
}

// NewExtractionHandler creates a new ExtractionHandler.
func NewExtractionHandler(extractionService service.ExtractionService, maxFileSizeMB int64, concurrency int) *ExtractionHandler {
	return &ExtractionHandler{
		extractionService: extractionService,
		maxFileSizeMB:     maxFileSizeMB,
		concurrency:       concurrency,
	}
}

// Extract handles POST /api/v1/extractions. The document is uploaded as
// multipart form data; document_type and an optional schema travel as form
// fields.
func (h *ExtractionHandler) Extract(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "file is required")
		return
	}
	if fileHeader.Size > h.maxFileSizeMB<<20 {
		RespondError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if _, ok := domain.AllowedContentTypes[contentType]; !ok {
		HandleError(c, domain.ErrUnsupportedFileType)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "could not open uploaded file")
		return
	}
	defer f.Close()
	docBytes, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "could not read uploaded file")
		return
	}

	var schema json.RawMessage
	if raw := c.PostForm("schema"); raw != "" {
		if !json.Valid([]byte(raw)) {
			RespondError(c, http.StatusBadRequest, "INVALID_SCHEMA", "schema must be valid JSON")
			return
		}
		schema = json.RawMessage(raw)
	}

	rec, err := h.extractionService.ExtractDocument(c.Request.Context(), &service.ExtractDocumentInput{
		Filename:     fileHeader.Filename,
		DocumentType: c.PostForm("document_type"),
		ContentType:  contentType,
		Document:     docBytes,
		Schema:       schema,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, rec)
}

// ExtractBulk handles POST /api/v1/extractions/bulk. Documents are referenced
// by their object-storage keys and processed concurrently; per-document
// failures are reported alongside the successes.
func (h *ExtractionHandler) ExtractBulk(c *gin.Context) {
	var req struct {
		Schema    json.RawMessage `json:"schema"`
		Documents []struct {
			Filename     string `json:"filename" binding:"required"`
			DocumentType string `json:"document_type"`
			ContentType  string `json:"content_type" binding:"required"`
			SourceKey    string `json:"source_key" binding:"required"`
		} `json:"documents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "documents are required")
		return
	}

	inputs := make([]*service.ExtractDocumentInput, 0, len(req.Documents))
	for _, d := range req.Documents {
		if _, ok := domain.AllowedContentTypes[d.ContentType]; !ok {
			HandleError(c, domain.ErrUnsupportedFileType)
			return
		}
		inputs = append(inputs, &service.ExtractDocumentInput{
			Filename:     d.Filename,
			DocumentType: d.DocumentType,
			ContentType:  d.ContentType,
			SourceKey:    d.SourceKey,
			Schema:       req.Schema,
		})
	}

	outcomes := h.extractionService.ExtractAll(c.Request.Context(), inputs, h.concurrency)

	type bulkResult struct {
		Filename string                   `json:"filename"`
		Record   *domain.ExtractionRecord `json:"record,omitempty"`
		Error    string                   `json:"error,omitempty"`
	}
	results := make([]bulkResult, 0, len(outcomes))
	for _, o := range outcomes {
		r := bulkResult{Filename: o.Filename, Record: o.Record}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		results = append(results, r)
	}
	RespondOK(c, results)
}

// GetRecord handles GET /api/v1/extractions/:id
func (h *ExtractionHandler) GetRecord(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid record ID")
		return
	}

	rec, err := h.extractionService.GetRecord(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, rec)
}

// ListRecords handles GET /api/v1/extractions?status=...&offset=...&limit=...
func (h *ExtractionHandler) ListRecords(c *gin.Context) {
	status := domain.RecordStatus(c.DefaultQuery("status", string(domain.RecordStatusCompleted)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	recs, total, err := h.extractionService.ListRecords(c.Request.Context(), status, offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, recs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// SourceDocument handles GET /api/v1/extractions/:id/document
func (h *ExtractionHandler) SourceDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid record ID")
		return
	}

	url, err := h.extractionService.PresignSource(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"url": url})
}

// Retry handles POST /api/v1/extractions/:id/retry
func (h *ExtractionHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid record ID")
		return
	}

	rec, err := h.extractionService.RetryExtraction(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, rec)
}
