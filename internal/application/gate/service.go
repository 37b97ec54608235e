package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/ledger"
	"github.com/tokengate/tokengate/internal/domain/notification"
	"github.com/tokengate/tokengate/internal/domain/session"
)

// MsgVerifyFailed is shown to a participant evicted because the lookup failed.
const MsgVerifyFailed = "Failed to verify balance. Please try again later."

// PermissionSyncer applies the bypass capability for an identity.
type PermissionSyncer interface {
	Apply(ctx context.Context, id identity.Identity, grant bool) error
}

// Deps are the collaborators of the gate.
type Deps struct {
	Client      ledger.Client
	Permissions PermissionSyncer
	Sink        notification.Sink
	Applier     session.Applier
	Policy      *Policy
	DenyList    *identity.Set
	Operator    identity.Identity
}

// Service admits joining participants based on their ledger balance.
type Service struct {
	client   ledger.Client
	perms    PermissionSyncer
	sink     notification.Sink
	applier  session.Applier
	policy   *Policy
	denyList *identity.Set
	operator identity.Identity
	vips     *identity.Set
	inflight sync.WaitGroup
	logger   zerolog.Logger
}

func NewService(deps Deps, logger zerolog.Logger) *Service {
	denyList := deps.DenyList
	if denyList == nil {
		denyList = identity.NewSet()
	}
	vips := identity.NewSet()
	if !deps.Operator.IsZero() {
		vips.Add(deps.Operator)
	}
	return &Service{
		client:   deps.Client,
		perms:    deps.Permissions,
		sink:     deps.Sink,
		applier:  deps.Applier,
		policy:   deps.Policy,
		denyList: denyList,
		operator: deps.Operator,
		vips:     vips,
		logger:   logger.With().Str("service", "gate").Logger(),
	}
}

// HandleJoin starts admission for a joining participant. All visible
// effects are applied later through the applier.
func (s *Service) HandleJoin(ctx context.Context, e session.Event) []session.Effect {
	id := e.Identity
	s.sink.Emit(fmt.Sprintf("👋 **Join**: %s has joined the server", id), notification.SourcePlayer)

	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if s.Privileged(id) {
			s.grantPrivileged(bg, id)
			return
		}
		s.applier.Apply(s.Verify(bg, id)...)
	}()
	return nil
}

// Privileged reports whether id skips the balance check.
func (s *Service) Privileged(id identity.Identity) bool {
	return s.denyList.Contains(id) || (!s.operator.IsZero() && s.operator.Equal(id))
}

func (s *Service) grantPrivileged(ctx context.Context, id identity.Identity) {
	if err := s.perms.Apply(ctx, id, true); err != nil {
		s.logger.Warn().Err(err).Str("identity", id.String()).Msg("failed to grant bypass to privileged identity")
		return
	}
	s.applier.Apply(session.SetBypass{Who: id, Grant: true})
}

// Verify looks up the balance for id and returns the resulting effects.
// Permission changes and notifications happen as side effects.
func (s *Service) Verify(ctx context.Context, id identity.Identity) []session.Effect {
	log := s.logger.With().Str("identity", id.String()).Logger()

	rec, err := s.client.LookupBalance(ctx, id)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return s.verifyFailed(log, id, err)
	}

	var (
		balance float64
		tier    = TierRejected
	)
	if rec != nil && err == nil {
		balance = rec.Balance
		if tier, err = s.policy.Decide(balance); err != nil {
			return s.verifyFailed(log, id, err)
		}
	}
	log.Info().Float64("balance", balance).Str("tier", tier.String()).Msg("admission decided")

	if tier == TierRejected {
		s.sink.Emit(fmt.Sprintf("🚫 **Kick**: %s was kicked (Insufficient balance: %f VIRAL)", id, balance), notification.SourceBalance)
		s.vips.Remove(id)
		return []session.Effect{session.Kick{Who: id, Reason: s.insufficientMessage()}}
	}

	vip := tier == TierVIP
	effects := []session.Effect{session.Tell{To: id, Text: "Your VIRAL address: " + rec.Address}}
	if err := s.perms.Apply(ctx, id, vip); err != nil {
		log.Warn().Err(err).Msg("failed to sync permissions")
	} else {
		effects = append(effects, session.SetBypass{Who: id, Grant: vip})
	}

	if vip {
		s.sink.Emit(fmt.Sprintf("🎉 **VIP**: %s granted VIP permissions (Balance: %f VIRAL)", id, balance), notification.SourceVIP)
		s.vips.Add(id)
		effects = append(effects, session.Tell{To: id, Text: fmt.Sprintf(
			"Coordinates Unlocked: Since you hold over %s $VIRAL, your F3 coordinates show your true location!",
			humanize.Commaf(s.policy.VIPThreshold))})
		return effects
	}

	s.vips.Remove(id)
	return append(effects, session.Tell{To: id, Text: fmt.Sprintf(
		"Coordinates Hidden: Your F3 coordinates are currently hidden. To see your true location, you need to hold at least %s $VIRAL.",
		humanize.Commaf(s.policy.VIPThreshold))})
}

func (s *Service) verifyFailed(log zerolog.Logger, id identity.Identity, err error) []session.Effect {
	log.Warn().Err(err).Msg("failed to check player balance")
	s.sink.Emit(fmt.Sprintf("❌ **Error**: Failed to check balance for %s: %s", id, err), notification.SourceError)
	return []session.Effect{session.Kick{Who: id, Reason: MsgVerifyFailed}}
}

func (s *Service) insufficientMessage() string {
	return fmt.Sprintf("Insufficient Balance - Required: %s VIRAL", humanize.Commaf(s.policy.AdmitThreshold))
}

// VIPs returns the identities currently admitted as VIP.
func (s *Service) VIPs() []identity.Identity {
	return s.vips.List()
}

// Wait blocks until in-flight admissions finish or ctx is done.
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
