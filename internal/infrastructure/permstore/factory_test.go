package permstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/infrastructure/memory"
	"github.com/tokengate/tokengate/internal/infrastructure/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, &config.Config{PermissionStore: config.StoreMemory}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memory.PermissionRepository{}, store)

	cfg := &config.Config{PermissionStore: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "p.db")}
	store, err = Open(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &sqlite.PermissionRepository{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, &config.Config{PermissionStore: "etcd"}, zerolog.Nop())
	assert.Error(t, err)
}
