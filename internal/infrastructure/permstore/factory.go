package permstore

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/domain/permission"
	"github.com/tokengate/tokengate/internal/infrastructure/memory"
	"github.com/tokengate/tokengate/internal/infrastructure/postgres"
	"github.com/tokengate/tokengate/internal/infrastructure/sqlite"
)

// Store is a permission repository that owns a closable backend.
type Store interface {
	permission.Repository
	Close() error
}

// Open builds the permission store selected by cfg.PermissionStore.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.PermissionStore {
	case config.StoreMemory, "":
		logger.Info().Str("store", config.StoreMemory).Msg("permission store ready")
		return memory.NewPermissionRepository(), nil
	case config.StoreSQLite:
		repo, err := sqlite.NewPermissionRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite permission store: %w", err)
		}
		logger.Info().Str("store", config.StoreSQLite).Str("path", cfg.SQLitePath).Msg("permission store ready")
		return repo, nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool, os.DirFS(cfg.MigrationsDir)); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Str("store", config.StorePostgres).Msg("permission store ready")
		return postgres.NewPermissionRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown permission store %q", cfg.PermissionStore)
	}
}
