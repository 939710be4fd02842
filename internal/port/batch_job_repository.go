package port

import (
	"context"

	"github.com/google/uuid"

	"docsieve/internal/domain"
)

// BatchJobRepository persists batch job descriptors. The store is the single
// source of truth for batch-job state.
type BatchJobRepository interface {
	Create(ctx context.Context, job *domain.BatchJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error)
	GetByProviderName(ctx context.Context, providerJobName string) (*domain.BatchJob, error)
	GetBySourceJobID(ctx context.Context, sourceJobID uuid.UUID) ([]domain.BatchJob, error)
	UpdateStatus(ctx context.Context, job *domain.BatchJob) error
	ListPending(ctx context.Context, batchDomain *domain.BatchDomain) ([]domain.BatchJob, error)
}
