package prize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/claim"
	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/ledger"
	"github.com/tokengate/tokengate/internal/domain/notification"
	"github.com/tokengate/tokengate/internal/domain/permission"
	"github.com/tokengate/tokengate/internal/domain/session"
)

// Participant-facing messages.
const (
	MsgNotAllowed  = "You are not allowed to use Prize Gold!"
	MsgClaimed     = "Prize claimed successfully!"
	MsgClaimFailed = "Failed to claim prize. Please try again later."
)

// CapabilityChecker answers permission node queries.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, id identity.Identity, node string) (bool, error)
}

// Presence reports whether a participant is connected.
type Presence interface {
	IsOnline(ctx context.Context, id identity.Identity) (bool, error)
}

// Deps are the collaborators of the coordinator.
type Deps struct {
	Client         ledger.Client
	Sink           notification.Sink
	Applier        session.Applier
	Machine        *claim.Machine
	Ledger         claim.Ledger
	DenyList       *identity.Set
	Capabilities   CapabilityChecker
	Presence       Presence
	ShutdownDelay  time.Duration
	// ReleaseBackoff is the pause between fleet release attempts.
	ReleaseBackoff time.Duration
}

const releaseAttempts = 3

// Service coordinates the one-time prize claim that ends the session.
type Service struct {
	client         ledger.Client
	sink           notification.Sink
	applier        session.Applier
	machine        *claim.Machine
	fleet          claim.Ledger
	denyList       *identity.Set
	caps           CapabilityChecker
	presence       Presence
	shutdownDelay  time.Duration
	releaseBackoff time.Duration
	inflight       sync.WaitGroup
	logger         zerolog.Logger
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	machine := deps.Machine
	if machine == nil {
		machine = claim.NewMachine()
	}
	var fleet claim.Ledger = claim.LocalLedger{}
	if deps.Ledger != nil {
		fleet = deps.Ledger
	}
	denyList := deps.DenyList
	if denyList == nil {
		denyList = identity.NewSet()
	}
	delay := deps.ShutdownDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	backoff := deps.ReleaseBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return &Service{
		client:         deps.Client,
		sink:           deps.Sink,
		applier:        deps.Applier,
		machine:        machine,
		fleet:          fleet,
		denyList:       denyList,
		caps:           deps.Capabilities,
		presence:       deps.Presence,
		shutdownDelay:  delay,
		releaseBackoff: backoff,
		logger:         logger.With().Str("service", "prize").Logger(),
	}
}

// State returns the local claim state.
func (s *Service) State() claim.State {
	return s.machine.State()
}

// HandleInteract starts a claim when a participant right-clicks with the prize item.
func (s *Service) HandleInteract(ctx context.Context, e session.Event) []session.Effect {
	if !e.Action.IsRightClick() || !e.Item.IsPrize() {
		return nil
	}
	effects := []session.Effect{session.CancelInteraction{Who: e.Identity}}
	if s.denyList.Contains(e.Identity) {
		return append(effects, session.Tell{To: e.Identity, Text: MsgNotAllowed})
	}

	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.Claim(bg, e.Identity); err != nil && !errors.Is(err, claim.ErrRaceRejected) {
			s.logger.Warn().Err(err).Str("identity", e.Identity.String()).Msg("prize claim failed")
		}
	}()
	return effects
}

// Claim runs the claim sequence. Only one caller can hold the claim at a
// time; others get claim.ErrRaceRejected with no visible effect.
func (s *Service) Claim(ctx context.Context, id identity.Identity) error {
	if err := s.machine.Begin(); err != nil {
		s.logger.Debug().Str("identity", id.String()).Str("state", s.machine.State().String()).Msg("claim rejected")
		return err
	}
	if err := s.fleet.Acquire(ctx, id); err != nil {
		_ = s.machine.Abort()
		if errors.Is(err, claim.ErrRaceRejected) {
			s.logger.Info().Str("identity", id.String()).Msg("claim held by another node")
			return err
		}
		s.fail(id, err)
		return err
	}

	content := fmt.Sprintf("Player %s has claimed their Prize Gold!", id)
	if err := s.sink.Deliver(ctx, content, notification.SourcePrize); err != nil &&
		!errors.Is(err, notification.ErrWebhookNotConfigured) {
		s.revert(ctx, id, err)
		return err
	}
	if err := s.client.ClaimReward(ctx, id); err != nil {
		s.revert(ctx, id, err)
		return err
	}

	s.applier.Apply(
		session.ConsumeItem{Who: id, Marker: session.MarkerPrizeGold},
		session.Tell{To: id, Text: MsgClaimed},
		session.Broadcast{Text: ""},
		session.Broadcast{Text: fmt.Sprintf("Tournament Complete! The prize has been claimed by %s!", id)},
		session.Broadcast{Text: fmt.Sprintf("Server shutting down in %d seconds...", int(s.shutdownDelay.Seconds()))},
		session.Broadcast{Text: ""},
		session.ScheduleShutdown{After: s.shutdownDelay},
	)
	if err := s.machine.Complete(); err != nil {
		return err
	}
	if err := s.fleet.Commit(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("identity", id.String()).Msg("failed to commit claim to fleet ledger")
	}
	s.logger.Info().Str("identity", id.String()).Msg("prize claimed")
	return nil
}

func (s *Service) revert(ctx context.Context, id identity.Identity, cause error) {
	if err := s.release(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("identity", id.String()).Msg("failed to release fleet claim")
	}
	_ = s.machine.Abort()
	s.fail(id, cause)
}

// release retries the fleet release. A record left in Claiming stays
// reacquirable by id and expires with the ledger lease.
func (s *Service) release(ctx context.Context, id identity.Identity) error {
	var err error
	for attempt := 1; attempt <= releaseAttempts; attempt++ {
		if err = s.fleet.Release(ctx, id); err == nil || errors.Is(err, claim.ErrInvalidTransition) {
			return err
		}
		s.logger.Warn().Err(err).Str("identity", id.String()).Int("attempt", attempt).Msg("fleet release failed")
		if attempt == releaseAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.releaseBackoff):
		}
	}
	return err
}

func (s *Service) fail(id identity.Identity, cause error) {
	s.applier.Apply(session.Tell{To: id, Text: MsgClaimFailed})
	s.sink.Emit(fmt.Sprintf("❌ **Error**: Failed to claim prize for %s: %s", id, cause), notification.SourceError)
}

// GivePrize grants one prize item to target. An empty sender is the console.
func (s *Service) GivePrize(ctx context.Context, sender, target identity.Identity) bool {
	log := s.logger.With().Str("sender", sender.String()).Str("target", target.String()).Logger()
	if !sender.IsZero() {
		allowed, err := s.caps.HasCapability(ctx, sender, permission.NodeGivePrize)
		if err != nil {
			log.Warn().Err(err).Msg("capability check failed")
			return false
		}
		if !allowed {
			log.Info().Msg("sender lacks prize capability")
			return false
		}
	}
	if target.IsZero() {
		return false
	}
	online, err := s.presence.IsOnline(ctx, target)
	if err != nil || !online {
		log.Info().Err(err).Msg("prize target not online")
		return false
	}

	effects := []session.Effect{session.GiveItem{To: target, Item: session.NewPrizeGold()}}
	if !sender.IsZero() {
		effects = append(effects, session.Tell{To: sender, Text: "Gave Prize Gold to " + target.String()})
	}
	if err := s.applier.Apply(effects...); err != nil {
		log.Warn().Err(err).Msg("prize item not granted")
		return false
	}
	log.Info().Msg("prize item granted")
	return true
}

// Wait blocks until in-flight claims finish or ctx is done.
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
