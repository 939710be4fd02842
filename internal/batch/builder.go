// Package batch implements the batch-job protocol against the inference
// service: request building, transport selection and submission, polling,
// result parsing, and the periodic job sweep.
package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

// BuildInput is one (document, prompt, schema) tuple destined for a batch
// job. Key is the caller-supplied correlation id, unique within one job.
type BuildInput struct {
	Key               string
	Document          []byte
	ContentType       string
	Filename          string
	DomainType        string
	SourceID          *uuid.UUID
	Prompt            string
	SystemInstruction string
	Schema            json.RawMessage
}

// Item pairs a provider-ready request with its correlation key and the
// metadata stored in the job descriptor.
type Item struct {
	Key     string
	Request port.BatchRequest
	Meta    domain.BatchRequestMeta
}

// Builder converts extraction inputs into provider-ready batch requests.
// It uploads each document to the provider's file store; transport
// selection is the Submitter's job, not the Builder's.
type Builder struct {
	files port.FileStore
}

// NewBuilder creates a batch request builder.
func NewBuilder(files port.FileStore) *Builder {
	return &Builder{files: files}
}

// Build uploads every document and returns one Item per input, preserving
// input order. Duplicate correlation keys are rejected up front.
func (b *Builder) Build(ctx context.Context, inputs []BuildInput) ([]Item, error) {
	seen := make(map[string]struct{}, len(inputs))
	items := make([]Item, 0, len(inputs))

	for _, in := range inputs {
		if in.Key == "" {
			return nil, fmt.Errorf("batch input %q has an empty correlation key", in.Filename)
		}
		if _, dup := seen[in.Key]; dup {
			return nil, fmt.Errorf("duplicate correlation key %q", in.Key)
		}
		seen[in.Key] = struct{}{}

		ref, err := b.files.Upload(ctx, in.Document, in.ContentType, in.Filename)
		if err != nil {
			return nil, fmt.Errorf("uploading %s: %w", in.Filename, err)
		}

		items = append(items, Item{
			Key: in.Key,
			Request: port.BatchRequest{
				Key:               in.Key,
				FileURI:           ref.URI,
				MIMEType:          ref.MIMEType,
				Prompt:            in.Prompt,
				SystemInstruction: in.SystemInstruction,
				Schema:            in.Schema,
			},
			Meta: domain.BatchRequestMeta{
				Filename:   in.Filename,
				DomainType: in.DomainType,
				SourceID:   in.SourceID,
			},
		})
	}
	return items, nil
}
