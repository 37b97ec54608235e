package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/permission"
)

// Service keeps the bypass capability in the permission store in line with admission results.
type Service struct {
	repo   permission.Repository
	logger zerolog.Logger
}

func NewService(repo permission.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("service", "permission").Logger(),
	}
}

// Register creates an empty record for id if none exists.
func (s *Service) Register(ctx context.Context, id identity.Identity) error {
	if err := s.repo.Create(ctx, id); err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	return nil
}

// Apply removes the bypass node and re-adds it only when grant is set.
func (s *Service) Apply(ctx context.Context, id identity.Identity, grant bool) error {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, permission.ErrUserNotFound) {
			s.logger.Warn().Str("identity", id.String()).Msg("permission user not found")
		}
		return err
	}

	rec.Remove(permission.NodeBypass)
	if grant {
		rec.Add(permission.NodeBypass)
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return fmt.Errorf("save permissions for %s: %w", id, err)
	}

	s.logger.Debug().Str("identity", id.String()).Bool("bypass", grant).Msg("permissions synced")
	return nil
}

// HasCapability reports whether id holds node. Unknown users hold nothing.
func (s *Service) HasCapability(ctx context.Context, id identity.Identity, node string) (bool, error) {
	rec, err := s.repo.Get(ctx, id)
	if errors.Is(err, permission.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Has(node), nil
}
