package prize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tokengate/tokengate/internal/domain/claim"
	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/ledger"
	ledgerMocks "github.com/tokengate/tokengate/internal/domain/ledger/mocks"
	"github.com/tokengate/tokengate/internal/domain/notification"
	notificationMocks "github.com/tokengate/tokengate/internal/domain/notification/mocks"
	"github.com/tokengate/tokengate/internal/domain/permission"
	"github.com/tokengate/tokengate/internal/domain/session"
)

type collector struct {
	mu      sync.Mutex
	effects []session.Effect
}

func (c *collector) Apply(effects ...session.Effect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.effects = append(c.effects, effects...)
	return nil
}

func (c *collector) all() []session.Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]session.Effect(nil), c.effects...)
}

type fakeCaps map[string]bool

func (f fakeCaps) HasCapability(_ context.Context, id identity.Identity, node string) (bool, error) {
	return node == permission.NodeGivePrize && f[id.Key()], nil
}

type fakePresence map[string]bool

func (f fakePresence) IsOnline(_ context.Context, id identity.Identity) (bool, error) {
	return f[id.Key()], nil
}

type rejectingLedger struct{ claim.LocalLedger }

func (rejectingLedger) Acquire(context.Context, identity.Identity) error { return claim.ErrRaceRejected }

// holderLedger keeps one Claiming holder, which may reacquire. Release
// fails the first failReleases times.
type holderLedger struct {
	mu           sync.Mutex
	holder       identity.Identity
	claimed      bool
	failReleases int
	releases     int
}

func (l *holderLedger) Acquire(_ context.Context, id identity.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimed || (!l.holder.IsZero() && !l.holder.Equal(id)) {
		return claim.ErrRaceRejected
	}
	l.holder = id
	return nil
}

func (l *holderLedger) Commit(_ context.Context, id identity.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.holder.Equal(id) {
		return claim.ErrInvalidTransition
	}
	l.claimed = true
	return nil
}

func (l *holderLedger) Release(_ context.Context, id identity.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	if l.releases <= l.failReleases {
		return errors.New("leadership lost")
	}
	if !l.holder.Equal(id) {
		return claim.ErrInvalidTransition
	}
	l.holder = ""
	return nil
}

type fixture struct {
	svc     *Service
	client  *ledgerMocks.MockClient
	sink    *notificationMocks.MockSink
	applied *collector
}

func newFixture(t *testing.T, fleet claim.Ledger) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := ledgerMocks.NewMockClient(ctrl)
	sink := &notificationMocks.MockSink{}
	sink.On("Emit", mock.Anything, mock.Anything).Return()
	applied := &collector{}
	svc := NewService(Deps{
		Client:         client,
		Sink:           sink,
		Applier:        applied,
		Ledger:         fleet,
		DenyList:       identity.ParseList("viral_steve,throwaway_name"),
		Capabilities:   fakeCaps{"admin": true},
		Presence:       fakePresence{"alice": true, "admin": true},
		ShutdownDelay:  10 * time.Second,
		ReleaseBackoff: time.Millisecond,
	}, zerolog.Nop())
	return &fixture{svc: svc, client: client, sink: sink, applied: applied}
}

func prizeEvent(id identity.Identity) session.Event {
	item := session.NewPrizeGold()
	return session.Event{Type: session.EventInteracted, Identity: id, Action: session.ActionRightClickAir, Item: &item}
}

func TestService_ClaimExactlyOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t, nil)
	f.sink.On("Deliver", mock.Anything, mock.Anything, notification.SourcePrize).Return(nil)
	f.client.EXPECT().ClaimReward(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	const n = 32
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := f.svc.Claim(context.Background(), identity.Identity(fmt.Sprintf("p%d", i)))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, claim.ErrRaceRejected):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(n-1), rejected.Load())
	assert.Equal(t, claim.StateClaimed, f.svc.State())
	f.sink.AssertNumberOfCalls(t, "Deliver", 1)

	var shutdowns int
	for _, e := range f.applied.all() {
		if _, ok := e.(session.ScheduleShutdown); ok {
			shutdowns++
		}
	}
	assert.Equal(t, 1, shutdowns)
}

func TestService_ClaimSuccessEffects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.sink.On("Deliver", ctx, "Player alice has claimed their Prize Gold!", notification.SourcePrize).Return(nil)
	f.client.EXPECT().ClaimReward(ctx, identity.Identity("alice")).Return(nil)

	require.NoError(t, f.svc.Claim(ctx, "alice"))

	assert.Equal(t, []session.Effect{
		session.ConsumeItem{Who: "alice", Marker: session.MarkerPrizeGold},
		session.Tell{To: "alice", Text: MsgClaimed},
		session.Broadcast{Text: ""},
		session.Broadcast{Text: "Tournament Complete! The prize has been claimed by alice!"},
		session.Broadcast{Text: "Server shutting down in 10 seconds..."},
		session.Broadcast{Text: ""},
		session.ScheduleShutdown{After: 10 * time.Second},
	}, f.applied.all())

	assert.ErrorIs(t, f.svc.Claim(ctx, "bob"), claim.ErrRaceRejected)
}

func TestService_ClaimFailureRevertsAndRetries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.sink.On("Deliver", ctx, mock.Anything, notification.SourcePrize).Return(nil)
	gomock.InOrder(
		f.client.EXPECT().ClaimReward(ctx, identity.Identity("alice")).Return(fmt.Errorf("%w: status 502", ledger.ErrTransport)),
		f.client.EXPECT().ClaimReward(ctx, identity.Identity("alice")).Return(nil),
	)

	err := f.svc.Claim(ctx, "alice")
	assert.ErrorIs(t, err, ledger.ErrTransport)
	assert.Equal(t, claim.StateUnclaimed, f.svc.State())
	assert.Equal(t, []session.Effect{session.Tell{To: "alice", Text: MsgClaimFailed}}, f.applied.all())
	f.sink.AssertCalled(t, "Emit", mock.Anything, notification.SourceError)

	require.NoError(t, f.svc.Claim(ctx, "alice"))
	assert.Equal(t, claim.StateClaimed, f.svc.State())
}

func TestService_ClaimNotificationFailureSkipsReward(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.sink.On("Deliver", ctx, mock.Anything, notification.SourcePrize).Return(errors.New("webhook 500"))
	// No ClaimReward expectation: the reward must not be requested.

	err := f.svc.Claim(ctx, "alice")

	assert.Error(t, err)
	assert.Equal(t, claim.StateUnclaimed, f.svc.State())
}

func TestService_ClaimWithoutWebhookProceeds(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.sink.On("Deliver", ctx, mock.Anything, notification.SourcePrize).Return(notification.ErrWebhookNotConfigured)
	f.client.EXPECT().ClaimReward(ctx, identity.Identity("alice")).Return(nil)

	require.NoError(t, f.svc.Claim(ctx, "alice"))
	assert.Equal(t, claim.StateClaimed, f.svc.State())
}

func TestService_ClaimRejectedByFleet(t *testing.T) {
	f := newFixture(t, rejectingLedger{})

	err := f.svc.Claim(context.Background(), "alice")

	assert.ErrorIs(t, err, claim.ErrRaceRejected)
	assert.Equal(t, claim.StateUnclaimed, f.svc.State())
	assert.Empty(t, f.applied.all())
	f.sink.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_RevertRetriesFleetRelease(t *testing.T) {
	fleet := &holderLedger{failReleases: 2}
	f := newFixture(t, fleet)
	ctx := context.Background()
	f.sink.On("Deliver", ctx, mock.Anything, notification.SourcePrize).Return(nil)
	gomock.InOrder(
		f.client.EXPECT().ClaimReward(ctx, identity.Identity("alice")).Return(errors.New("reward api down")),
		f.client.EXPECT().ClaimReward(ctx, identity.Identity("bob")).Return(nil),
	)

	require.Error(t, f.svc.Claim(ctx, "alice"))
	assert.Equal(t, 3, fleet.releases)
	assert.True(t, fleet.holder.IsZero())

	require.NoError(t, f.svc.Claim(ctx, "bob"))
	assert.True(t, fleet.claimed)
}

func TestService_LostReleaseLeavesHolderRetryable(t *testing.T) {
	fleet := &holderLedger{failReleases: releaseAttempts}
	f := newFixture(t, fleet)
	ctx := context.Background()
	f.sink.On("Deliver", ctx, mock.Anything, notification.SourcePrize).Return(nil)
	gomock.InOrder(
		f.client.EXPECT().ClaimReward(ctx, identity.Identity("alice")).Return(errors.New("reward api down")),
		f.client.EXPECT().ClaimReward(ctx, identity.Identity("alice")).Return(nil),
	)

	require.Error(t, f.svc.Claim(ctx, "alice"))
	assert.Equal(t, releaseAttempts, fleet.releases)
	assert.Equal(t, claim.StateUnclaimed, f.svc.State())

	require.NoError(t, f.svc.Claim(ctx, "alice"))
	assert.Equal(t, claim.StateClaimed, f.svc.State())
	assert.True(t, fleet.claimed)
}

func TestService_HandleInteract(t *testing.T) {
	t.Run("ignores left click and plain items", func(t *testing.T) {
		f := newFixture(t, nil)
		e := prizeEvent("alice")
		e.Action = session.ActionLeftClickAir
		assert.Nil(t, f.svc.HandleInteract(context.Background(), e))

		e = prizeEvent("alice")
		e.Item = &session.Item{Kind: "GOLD_INGOT", Amount: 1}
		assert.Nil(t, f.svc.HandleInteract(context.Background(), e))

		e.Item = nil
		assert.Nil(t, f.svc.HandleInteract(context.Background(), e))
	})

	t.Run("deny-listed participant is refused", func(t *testing.T) {
		f := newFixture(t, nil)
		effects := f.svc.HandleInteract(context.Background(), prizeEvent("Throwaway_Name"))
		assert.Equal(t, []session.Effect{
			session.CancelInteraction{Who: "Throwaway_Name"},
			session.Tell{To: "Throwaway_Name", Text: MsgNotAllowed},
		}, effects)
		assert.Equal(t, claim.StateUnclaimed, f.svc.State())
	})

	t.Run("prize right click claims in background", func(t *testing.T) {
		f := newFixture(t, nil)
		f.sink.On("Deliver", mock.Anything, mock.Anything, notification.SourcePrize).Return(nil)
		f.client.EXPECT().ClaimReward(gomock.Any(), identity.Identity("alice")).Return(nil)

		effects := f.svc.HandleInteract(context.Background(), prizeEvent("alice"))
		assert.Equal(t, []session.Effect{session.CancelInteraction{Who: "alice"}}, effects)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, f.svc.Wait(ctx))
		assert.Equal(t, claim.StateClaimed, f.svc.State())
	})
}

func TestService_GivePrize(t *testing.T) {
	ctx := context.Background()

	t.Run("console to online target", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.True(t, f.svc.GivePrize(ctx, "", "Alice"))
		assert.Equal(t, []session.Effect{session.GiveItem{To: "Alice", Item: session.NewPrizeGold()}}, f.applied.all())
	})

	t.Run("capable sender is told", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.True(t, f.svc.GivePrize(ctx, "admin", "alice"))
		assert.Len(t, f.applied.all(), 2)
	})

	t.Run("sender without capability", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.False(t, f.svc.GivePrize(ctx, "alice", "admin"))
		assert.Empty(t, f.applied.all())
	})

	t.Run("offline target", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.False(t, f.svc.GivePrize(ctx, "", "nobody"))
		assert.False(t, f.svc.GivePrize(ctx, "", ""))
		assert.Empty(t, f.applied.all())
	})
}
