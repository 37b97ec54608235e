package memory

import (
	"context"
	"sync"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/permission"
)

// PermissionRepository implements permission.Repository in memory.
type PermissionRepository struct {
	mu      sync.RWMutex
	records map[string]*permission.Record
}

func NewPermissionRepository() *PermissionRepository {
	return &PermissionRepository{records: make(map[string]*permission.Record)}
}

func (r *PermissionRepository) Get(_ context.Context, id identity.Identity) (*permission.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id.Key()]
	if !ok {
		return nil, permission.ErrUserNotFound
	}
	return rec.Clone(), nil
}

func (r *PermissionRepository) Create(_ context.Context, id identity.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id.Key()]; ok {
		return nil
	}
	r.records[id.Key()] = permission.NewRecord(id)
	return nil
}

func (r *PermissionRepository) Save(_ context.Context, record *permission.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.Identity.Key()]; !ok {
		return permission.ErrUserNotFound
	}
	r.records[record.Identity.Key()] = record.Clone()
	return nil
}

func (r *PermissionRepository) Close() error { return nil }
