package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tokengate/tokengate/internal/domain/notification"
)

// MockSink is a mock implementation of notification.Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Emit(content string, source notification.Source) {
	m.Called(content, source)
}

func (m *MockSink) Deliver(ctx context.Context, content string, source notification.Source) error {
	args := m.Called(ctx, content, source)
	return args.Error(0)
}
