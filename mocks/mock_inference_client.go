package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"docsieve/internal/port"
)

// MockInferenceClient is a mock implementation of port.InferenceClient.
type MockInferenceClient struct {
	mock.Mock
}

func (m *MockInferenceClient) Generate(ctx context.Context, input *port.GenerateInput) (*port.GenerateOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.GenerateOutput), args.Error(1)
}
