package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docsieve/internal/domain"
)

// MockBatchJobRepo is a mock implementation of port.BatchJobRepository.
type MockBatchJobRepo struct {
	mock.Mock
}

func (m *MockBatchJobRepo) Create(ctx context.Context, job *domain.BatchJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockBatchJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchJob), args.Error(1)
}

func (m *MockBatchJobRepo) GetByProviderName(ctx context.Context, providerJobName string) (*domain.BatchJob, error) {
	args := m.Called(ctx, providerJobName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchJob), args.Error(1)
}

func (m *MockBatchJobRepo) GetBySourceJobID(ctx context.Context, sourceJobID uuid.UUID) ([]domain.BatchJob, error) {
	args := m.Called(ctx, sourceJobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BatchJob), args.Error(1)
}

func (m *MockBatchJobRepo) UpdateStatus(ctx context.Context, job *domain.BatchJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockBatchJobRepo) ListPending(ctx context.Context, batchDomain *domain.BatchDomain) ([]domain.BatchJob, error) {
	args := m.Called(ctx, batchDomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BatchJob), args.Error(1)
}
