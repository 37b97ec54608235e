package bridge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tokengate/tokengate/internal/application/chatrelay"
	"github.com/tokengate/tokengate/internal/application/gate"
	"github.com/tokengate/tokengate/internal/application/permission"
	"github.com/tokengate/tokengate/internal/application/poller"
	"github.com/tokengate/tokengate/internal/application/prize"
	"github.com/tokengate/tokengate/internal/domain/identity"
	ledgerMocks "github.com/tokengate/tokengate/internal/domain/ledger/mocks"
	notificationMocks "github.com/tokengate/tokengate/internal/domain/notification/mocks"
	"github.com/tokengate/tokengate/internal/domain/session"
	"github.com/tokengate/tokengate/internal/infrastructure/dedup"
	"github.com/tokengate/tokengate/internal/infrastructure/memory"
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

type online struct{}

func (online) IsOnline(context.Context, identity.Identity) (bool, error) { return true, nil }

type fixture struct {
	svc     *Service
	client  *ledgerMocks.MockClient
	sink    *notificationMocks.MockSink
	repo    *memory.PermissionRepository
	store   *dedup.Store
	applied *collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := ledgerMocks.NewMockClient(ctrl)
	sink := &notificationMocks.MockSink{}
	sink.On("Emit", mock.Anything, mock.Anything).Return()
	sink.On("Deliver", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repo := memory.NewPermissionRepository()
	store := dedup.NewStore(filepath.Join(t.TempDir(), "ids.json"))
	applied := &collector{}
	logger := zerolog.Nop()

	denyList := identity.ParseList("viral_steve,throwaway_name")
	policy, err := gate.NewPolicy("", "", 25000, 1000000)
	require.NoError(t, err)
	perms := permission.NewService(repo, logger)

	svc := NewService(Components{
		Dedup:       store,
		Applier:     applied,
		Permissions: perms,
		Gate: gate.NewService(gate.Deps{
			Client: client, Permissions: perms, Sink: sink, Applier: applied,
			Policy: policy, DenyList: denyList, Operator: "viral_steve",
		}, logger),
		Prize: prize.NewService(prize.Deps{
			Client: client, Sink: sink, Applier: applied, DenyList: denyList,
			Capabilities: perms, Presence: online{},
		}, logger),
		Chat:   chatrelay.NewService(client, sink, logger),
		Poller: poller.NewService(client, store, applied, time.Second, logger),
	}, logger)
	return &fixture{svc: svc, client: client, sink: sink, repo: repo, store: store, applied: applied}
}

func shutdown(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}

func TestService_DispatchRejectsBadEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Dispatch(ctx, session.Event{Type: session.EventJoined}), ErrEmptyIdentity)
	assert.ErrorIs(t, f.svc.Dispatch(ctx, session.Event{Type: "TELEPORTED", Identity: "alice"}), ErrUnknownEvent)
}

func TestService_JoinRegistersAndGrantsPrivileged(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Dispatch(context.Background(), session.Event{Type: session.EventJoined, Identity: "viral_steve"}))
	shutdown(t, f.svc)

	rec, err := f.repo.Get(context.Background(), "viral_steve")
	require.NoError(t, err)
	assert.Equal(t, []string{"coordinateoffset.bypass"}, rec.NodeList())
	assert.Contains(t, f.applied.all(), session.Effect(session.SetBypass{Who: "viral_steve", Grant: true}))
}

func TestService_InteractClaimsPrize(t *testing.T) {
	f := newFixture(t)
	f.client.EXPECT().ClaimReward(gomock.Any(), identity.Identity("alice")).Return(nil)
	item := session.NewPrizeGold()

	err := f.svc.Dispatch(context.Background(), session.Event{
		Type: session.EventInteracted, Identity: "alice", Action: session.ActionRightClickBlock, Item: &item,
	})
	require.NoError(t, err)
	shutdown(t, f.svc)

	effects := f.applied.all()
	require.NotEmpty(t, effects)
	assert.Equal(t, session.CancelInteraction{Who: "alice"}, effects[0])
	assert.Equal(t, "CLAIMED", f.svc.Status().ClaimState)
}

func TestService_RegisterExtraHandler(t *testing.T) {
	f := newFixture(t)
	f.client.EXPECT().SendChat(gomock.Any(), identity.Identity("alice"), "hi").Return(nil)
	f.svc.Register(session.EventChatSent, func(_ context.Context, e session.Event) []session.Effect {
		return []session.Effect{session.Tell{To: e.Identity, Text: "seen"}}
	})

	require.NoError(t, f.svc.Dispatch(context.Background(), session.Event{Type: session.EventChatSent, Identity: "alice", Message: "hi"}))
	shutdown(t, f.svc)

	assert.Equal(t, []session.Effect{session.Tell{To: "alice", Text: "seen"}}, f.applied.all())
}

func TestService_StatusAndShutdownFlush(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Insert("m1"))

	st := f.svc.Status()
	assert.Equal(t, "UNCLAIMED", st.ClaimState)
	assert.Equal(t, 1, st.ProcessedMessages)
	assert.Equal(t, []identity.Identity{"viral_steve"}, st.VIPs)

	shutdown(t, f.svc)
	_, err := os.Stat(f.store.Path())
	assert.NoError(t, err)
}
