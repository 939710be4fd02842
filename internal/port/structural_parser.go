package port

import (
	"context"

	"docsieve/internal/domain"
)

// StructuralParser abstracts the local structural pre-pass. It is
// deterministic CPU work and makes no network calls.
//
// Parse fails with domain.ErrNotFound when the path does not exist and
// domain.ErrUnprocessable for malformed input.
type StructuralParser interface {
	Parse(ctx context.Context, path string) (*domain.DocumentStructure, error)
	ParseBytes(ctx context.Context, data []byte, contentType string) (*domain.DocumentStructure, error)
}
