package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/ledger"
	"github.com/tokengate/tokengate/internal/domain/session"
)

// ChatPrefix is prepended to relayed challenge messages.
const ChatPrefix = "[chat] "

// Dedup remembers relayed message ids.
type Dedup interface {
	Contains(id string) bool
	Insert(id string) error
}

// Service relays new user messages from the remote challenge into the session.
type Service struct {
	client   ledger.Client
	dedup    Dedup
	applier  session.Applier
	interval time.Duration
	logger   zerolog.Logger
}

func NewService(client ledger.Client, store Dedup, applier session.Applier, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{
		client:   client,
		dedup:    store,
		applier:  applier,
		interval: interval,
		logger:   logger.With().Str("service", "poller").Logger(),
	}
}

// Run ticks until ctx is done. A failed tick is logged and retried on the next one.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("poller started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("poller stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("poll failed")
			}
		}
	}
}

// Tick performs one poll and returns how many messages were relayed.
func (s *Service) Tick(ctx context.Context) (int, error) {
	messages, err := s.client.FetchChallenge(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch challenge: %w", err)
	}

	relayed := 0
	for _, m := range messages {
		if !m.Relayable() || s.dedup.Contains(m.ID) {
			continue
		}
		if err := s.applier.Apply(session.Broadcast{Kind: session.KindChat, Text: ChatPrefix + m.Content}); err != nil {
			return relayed, fmt.Errorf("relay message %s: %w", m.ID, err)
		}
		if err := s.dedup.Insert(m.ID); err != nil {
			s.logger.Error().Err(err).Str("message_id", m.ID).Msg("failed to persist processed id")
		}
		relayed++
		s.logger.Debug().Str("message_id", m.ID).Msg("message relayed")
	}
	return relayed, nil
}
