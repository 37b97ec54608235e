package ledger

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_client.go -package=mocks . Client

import (
	"context"
	"errors"
	"time"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

// RoleUser marks chat messages written by people rather than the bot.
const RoleUser = "user"

var (
	ErrTransport = errors.New("ledger transport failure")
	ErrParse     = errors.New("malformed ledger payload")
	ErrNotFound  = errors.New("identity not found in whitelist")
)

// BalanceRecord is one whitelist entry returned by a balance lookup.
type BalanceRecord struct {
	Identity  identity.Identity `json:"username"`
	Address   string            `json:"address"`
	Balance   float64           `json:"viral_balance"`
	Signature string            `json:"signature"`
	RecordID  string            `json:"_id"`
}

// ChallengeMessage is one entry of the remote chat history.
type ChallengeMessage struct {
	ID        string    `json:"_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"date"`
}

// Relayable reports whether the message was written by a user.
func (m ChallengeMessage) Relayable() bool {
	return m.Role == RoleUser
}

// Client is the remote ledger service. Implementations wrap failures with
// ErrTransport or ErrParse.
type Client interface {
	FetchChallenge(ctx context.Context) ([]ChallengeMessage, error)
	LookupBalance(ctx context.Context, id identity.Identity) (*BalanceRecord, error)
	ClaimReward(ctx context.Context, id identity.Identity) error
	SendChat(ctx context.Context, id identity.Identity, content string) error
}
