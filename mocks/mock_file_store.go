package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docsieve/internal/port"
)

// MockFileStore is a mock implementation of port.FileStore.
type MockFileStore struct {
	mock.Mock
}

func (m *MockFileStore) Upload(ctx context.Context, data []byte, mimeType, displayName string) (*port.FileRef, error) {
	args := m.Called(ctx, data, mimeType, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.FileRef), args.Error(1)
}

func (m *MockFileStore) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockFileStore) Download(ctx context.Context, name string) ([]byte, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
