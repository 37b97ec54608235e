package permission

import (
	"context"
	"errors"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

var ErrUserNotFound = errors.New("permission user not found")

// Repository defines persistence for permission records.
type Repository interface {
	// Get returns ErrUserNotFound when the identity has no record.
	Get(ctx context.Context, id identity.Identity) (*Record, error)
	// Create stores an empty record unless one already exists.
	Create(ctx context.Context, id identity.Identity) error
	// Save replaces the stored node set for the record's identity.
	Save(ctx context.Context, record *Record) error
}
