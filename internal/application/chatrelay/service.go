package chatrelay

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/ledger"
	"github.com/tokengate/tokengate/internal/domain/notification"
	"github.com/tokengate/tokengate/internal/domain/session"
)

// Service mirrors participant chat to the operator sink and the remote ledger.
type Service struct {
	client   ledger.Client
	sink     notification.Sink
	inflight sync.WaitGroup
	logger   zerolog.Logger
}

func NewService(client ledger.Client, sink notification.Sink, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		sink:   sink,
		logger: logger.With().Str("service", "chatrelay").Logger(),
	}
}

// HandleChat forwards one chat line. It has no session-visible effects.
func (s *Service) HandleChat(ctx context.Context, e session.Event) []session.Effect {
	s.sink.Emit(fmt.Sprintf("💬 **Chat**: %s: %s", e.Identity, e.Message), notification.SourceChat)

	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.client.SendChat(bg, e.Identity, e.Message); err != nil {
			s.logger.Warn().Err(err).Str("identity", e.Identity.String()).Msg("failed to send chat message to API")
			s.sink.Emit("❌ **API Error**: Failed to send chat message to API: "+err.Error(), notification.SourceError)
		}
	}()
	return nil
}

// Wait blocks until in-flight relays finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
