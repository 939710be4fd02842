package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docsieve/internal/domain"
)

// MockStructuralParser is a mock implementation of port.StructuralParser.
type MockStructuralParser struct {
	mock.Mock
}

func (m *MockStructuralParser) Parse(ctx context.Context, path string) (*domain.DocumentStructure, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentStructure), args.Error(1)
}

func (m *MockStructuralParser) ParseBytes(ctx context.Context, data []byte, contentType string) (*domain.DocumentStructure, error) {
	args := m.Called(ctx, data, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentStructure), args.Error(1)
}
