package port

import (
	"context"

	"github.com/google/uuid"

	"docsieve/internal/domain"
)

// ExtractionRecordRepository persists per-document extraction outcomes,
// including partial ones.
type ExtractionRecordRepository interface {
	Create(ctx context.Context, rec *domain.ExtractionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error)
	Update(ctx context.Context, rec *domain.ExtractionRecord) error
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	ListByBatchJob(ctx context.Context, batchJobID uuid.UUID) ([]domain.ExtractionRecord, error)
	ListByStatus(ctx context.Context, status domain.RecordStatus, offset, limit int) ([]domain.ExtractionRecord, int, error)
}
