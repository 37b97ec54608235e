package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/application/chatrelay"
	"github.com/tokengate/tokengate/internal/application/gate"
	"github.com/tokengate/tokengate/internal/application/permission"
	"github.com/tokengate/tokengate/internal/application/poller"
	"github.com/tokengate/tokengate/internal/application/prize"
	"github.com/tokengate/tokengate/internal/domain/claim"
	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/session"
)

var (
	ErrUnknownEvent  = errors.New("no handler for event type")
	ErrEmptyIdentity = errors.New("event identity is empty")
)

// Store is the processed message id store owned by the bridge.
type Store interface {
	poller.Dedup
	Len() int
	Flush() error
}

// Components are the services the bridge dispatches to.
type Components struct {
	Dedup       Store
	Applier     session.Applier
	Permissions *permission.Service
	Gate        *gate.Service
	Prize       *prize.Service
	Chat        *chatrelay.Service
	Poller      *poller.Service
}

// Status is a point-in-time view of the bridge.
type Status struct {
	ClaimState        string              `json:"claimState"`
	ProcessedMessages int                 `json:"processedMessages"`
	VIPs              []identity.Identity `json:"vips"`
}

type waiter interface {
	Wait(ctx context.Context) error
}

// Service routes session events to the component handlers and applies the
// effects they return.
type Service struct {
	dedup   Store
	applier session.Applier
	perms   *permission.Service
	gate    *gate.Service
	prize   *prize.Service
	chat    *chatrelay.Service
	poller  *poller.Service
	logger  zerolog.Logger

	mu       sync.RWMutex
	handlers map[session.EventType][]session.Handler
}

func NewService(c Components, logger zerolog.Logger) *Service {
	s := &Service{
		dedup:    c.Dedup,
		applier:  c.Applier,
		perms:    c.Permissions,
		gate:     c.Gate,
		prize:    c.Prize,
		chat:     c.Chat,
		poller:   c.Poller,
		logger:   logger.With().Str("service", "bridge").Logger(),
		handlers: make(map[session.EventType][]session.Handler),
	}
	s.Register(session.EventJoined, s.onJoined)
	s.Register(session.EventInteracted, s.prize.HandleInteract)
	s.Register(session.EventChatSent, s.chat.HandleChat)
	return s
}

// Register adds a handler for an event type. Handlers run in registration order.
func (s *Service) Register(t session.EventType, h session.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = append(s.handlers[t], h)
}

// Dispatch runs every handler registered for e.Type and applies their effects.
func (s *Service) Dispatch(ctx context.Context, e session.Event) error {
	if e.Identity.IsZero() {
		return ErrEmptyIdentity
	}
	s.mu.RLock()
	handlers := s.handlers[e.Type]
	s.mu.RUnlock()
	if len(handlers) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, e.Type)
	}

	var effects []session.Effect
	for _, h := range handlers {
		effects = append(effects, h(ctx, e)...)
	}
	if err := s.applier.Apply(effects...); err != nil {
		return fmt.Errorf("apply %s effects: %w", e.Type, err)
	}
	s.logger.Debug().Str("event", string(e.Type)).Str("identity", e.Identity.String()).Int("effects", len(effects)).Msg("event dispatched")
	return nil
}

func (s *Service) onJoined(ctx context.Context, e session.Event) []session.Effect {
	if err := s.perms.Register(ctx, e.Identity); err != nil {
		s.logger.Warn().Err(err).Str("identity", e.Identity.String()).Msg("failed to register permission user")
	}
	return s.gate.HandleJoin(ctx, e)
}

// GivePrize runs the admin prize command.
func (s *Service) GivePrize(ctx context.Context, sender, target identity.Identity) bool {
	return s.prize.GivePrize(ctx, sender, target)
}

// RunPoller relays remote chat until ctx is done.
func (s *Service) RunPoller(ctx context.Context) error {
	return s.poller.Run(ctx)
}

// Status reports claim state, relay progress and the VIP registry.
func (s *Service) Status() Status {
	return Status{
		ClaimState:        s.prize.State().String(),
		ProcessedMessages: s.dedup.Len(),
		VIPs:              s.gate.VIPs(),
	}
}

// ClaimState returns the local prize claim state.
func (s *Service) ClaimState() claim.State {
	return s.prize.State()
}

// Shutdown waits for background work and flushes the dedup store.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	for _, w := range []waiter{s.gate, s.prize, s.chat} {
		if err := w.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.dedup.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush dedup store: %w", err))
	}
	return errors.Join(errs...)
}
