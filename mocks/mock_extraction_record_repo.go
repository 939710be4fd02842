package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"docsieve/internal/domain"
)

// MockExtractionRecordRepo is a mock implementation of
// port.ExtractionRecordRepository.
type MockExtractionRecordRepo struct {
	mock.Mock
}

func (m *MockExtractionRecordRepo) Create(ctx context.Context, rec *domain.ExtractionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockExtractionRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionRecord), args.Error(1)
}

func (m *MockExtractionRecordRepo) Update(ctx context.Context, rec *domain.ExtractionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockExtractionRecordRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockExtractionRecordRepo) ListByBatchJob(ctx context.Context, batchJobID uuid.UUID) ([]domain.ExtractionRecord, error) {
	args := m.Called(ctx, batchJobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExtractionRecord), args.Error(1)
}

func (m *MockExtractionRecordRepo) ListByStatus(ctx context.Context, status domain.RecordStatus, offset, limit int) ([]domain.ExtractionRecord, int, error) {
	args := m.Called(ctx, status, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ExtractionRecord), args.Int(1), args.Error(2)
}
