package ledgerapi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/ledger"
)

// MockFixtures are the whitelist entries served in mock mode.
var MockFixtures = []ledger.BalanceRecord{
	{
		Identity:  "throwaway_name",
		Address:   "rich_player_address_J31XET6BiQE2eiVgx2PF6G45rPK6VNKWKrog4u2gj5nv",
		Balance:   2000000,
		Signature: "mock_signature",
		RecordID:  "mock_id",
	},
	{
		Identity:  "poor_player",
		Address:   "poor_player_address_A31XET6BiQE2eiVgx2PF6G45rPK6VNKWKrog4u2gj5nv",
		Balance:   10000,
		Signature: "mock_signature",
		RecordID:  "mock_id",
	},
	{
		Identity:  "normal_player",
		Address:   "normal_player_address_B31XET6BiQE2eiVgx2PF6G45rPK6VNKWKrog4u2gj5nv",
		Balance:   50000,
		Signature: "mock_signature",
		RecordID:  "mock_id",
	},
}

// MockClient is a deterministic in-process ledger used when MOCK_API is set.
type MockClient struct {
	now    func() time.Time
	logger zerolog.Logger
}

// NewMockClient creates a mock ledger. A nil clock uses time.Now.
func NewMockClient(now func() time.Time, logger zerolog.Logger) *MockClient {
	if now == nil {
		now = time.Now
	}
	return &MockClient{
		now:    now,
		logger: logger.With().Str("service", "ledger_mock").Logger(),
	}
}

// FetchChallenge yields one user message whose id is the current unix millis.
func (m *MockClient) FetchChallenge(_ context.Context) ([]ledger.ChallengeMessage, error) {
	now := m.now()
	millis := now.UnixMilli()
	return []ledger.ChallengeMessage{{
		ID:        strconv.FormatInt(millis, 10),
		Role:      ledger.RoleUser,
		Content:   fmt.Sprintf("This is a test message from the mock API at %d", millis),
		Timestamp: now.UTC(),
	}}, nil
}

func (m *MockClient) LookupBalance(_ context.Context, id identity.Identity) (*ledger.BalanceRecord, error) {
	m.logger.Info().Str("identity", id.String()).Msg("[Mock API] checking balance")
	return findRecord(MockFixtures, id)
}

func (m *MockClient) ClaimReward(_ context.Context, id identity.Identity) error {
	m.logger.Info().Str("identity", id.String()).Msg("[Mock API] reward claimed")
	return nil
}

func (m *MockClient) SendChat(_ context.Context, id identity.Identity, content string) error {
	m.logger.Info().Str("identity", id.String()).Str("content", content).Msg("[Mock API] chat forwarded")
	return nil
}
