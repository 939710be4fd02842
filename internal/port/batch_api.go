package port

import (
	"context"
	"encoding/json"

	"docsieve/internal/domain"
)

// BatchRequest is one provider-ready request inside a batch job. The document
// content is always referenced by an uploaded file URI; the correlation Key is
// opaque to the provider and round-trips through file-based transport.
type BatchRequest struct {
	Key               string          `json:"key"`
	FileURI           string          `json:"file_uri"`
	MIMEType          string          `json:"mime_type"`
	Prompt            string          `json:"prompt"`
	SystemInstruction string          `json:"system_instruction,omitempty"`
	Schema            json.RawMessage `json:"schema,omitempty"`
}

// InlineResult is one positional response from an inline batch job. Order
// matches submission order; that ordering is the only correlation mechanism
// for inline transport.
type InlineResult struct {
	Raw   json.RawMessage
	Error string
}

// BatchJobState is a point-in-time view of one provider batch job.
type BatchJobState struct {
	Status          domain.BatchJobStatus
	InlineResults   []InlineResult // populated for terminal inline jobs
	ResultFileName  string         // populated for terminal file-based jobs
	Error           string         // provider's top-level error text
}

// BatchAPI is the asynchronous batch surface of the inference service.
type BatchAPI interface {
	CreateInline(ctx context.Context, model, displayName string, requests []BatchRequest) (string, error)
	CreateFromFile(ctx context.Context, model, displayName, fileName string) (string, error)
	GetJob(ctx context.Context, jobName string) (*BatchJobState, error)
}
