package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docsieve/internal/port"
)

// MockBatchAPI is a mock implementation of port.BatchAPI.
type MockBatchAPI struct {
	mock.Mock
}

func (m *MockBatchAPI) CreateInline(ctx context.Context, model, displayName string, requests []port.BatchRequest) (string, error) {
	args := m.Called(ctx, model, displayName, requests)
	return args.String(0), args.Error(1)
}

func (m *MockBatchAPI) CreateFromFile(ctx context.Context, model, displayName, fileName string) (string, error) {
	args := m.Called(ctx, model, displayName, fileName)
	return args.String(0), args.Error(1)
}

func (m *MockBatchAPI) GetJob(ctx context.Context, jobName string) (*port.BatchJobState, error) {
	args := m.Called(ctx, jobName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.BatchJobState), args.Error(1)
}
