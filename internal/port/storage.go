package port

import (
	"context"
	"io"
)

// StoreInput describes one source document being written to object storage.
type StoreInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
}

// StoreOutput is the storage location of a written document.
type StoreOutput struct {
	Location string
	ETag     string
}

// ObjectStorage holds source documents so failed extractions can be retried
// without the caller resubmitting bytes.
type ObjectStorage interface {
	Upload(ctx context.Context, input StoreInput) (*StoreOutput, error)
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	PresignDownload(ctx context.Context, bucket, key string, expirySeconds int64) (string, error)
}
