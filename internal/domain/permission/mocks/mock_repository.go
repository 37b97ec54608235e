package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/permission"
)

// MockRepository is a mock implementation of permission.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(ctx context.Context, id identity.Identity) (*permission.Record, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*permission.Record), args.Error(1)
}

func (m *MockRepository) Create(ctx context.Context, id identity.Identity) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) Save(ctx context.Context, record *permission.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}
