package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockPromptCache is a mock implementation of port.PromptCache.
type MockPromptCache struct {
	mock.Mock
}

func (m *MockPromptCache) Create(ctx context.Context, model, systemInstruction, displayName string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, model, systemInstruction, displayName, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockPromptCache) Probe(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}
