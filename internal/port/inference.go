package port

import (
	"context"
	"encoding/json"
	"time"
)

// FileRef identifies a file uploaded to the inference provider's file store.
type FileRef struct {
	Name     string
	URI      string
	MIMEType string
}

// GenerateInput carries one synchronous inference request. Exactly one of
// Prompt and File drives the document content: the hybrid path sends the
// structural markdown embedded in Prompt, the vision fallback sends File.
type GenerateInput struct {
	Model             string
	Prompt            string
	File              *FileRef
	SystemInstruction string
	Schema            json.RawMessage
	CacheName         string
	MaxOutputTokens   int32
}

// GenerateOutput is the provider's response plus token accounting.
type GenerateOutput struct {
	Text         string
	CachedTokens int32
	TotalTokens  int32
}

// InferenceClient is the synchronous surface of the inference service.
type InferenceClient interface {
	Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error)
}

// FileStore is the inference provider's file store.
type FileStore interface {
	Upload(ctx context.Context, data []byte, mimeType, displayName string) (*FileRef, error)
	Delete(ctx context.Context, name string) error
	Download(ctx context.Context, name string) ([]byte, error)
}

// PromptCache manages server-side cached prompt prefixes. Create returns the
// provider-assigned cache resource name; Probe is a lightweight existence
// check used to detect expiry before reuse.
type PromptCache interface {
	Create(ctx context.Context, model, systemInstruction, displayName string, ttl time.Duration) (string, error)
	Probe(ctx context.Context, name string) error
}
