package ledgerapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/internal/domain/ledger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", BotName: "viral_steve", Secret: "s3cret", Timeout: 2 * time.Second}, zerolog.Nop())
}

func TestClient_FetchChallenge(t *testing.T) {
	t.Run("parses history in order", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, challengePath, r.URL.Path)
			assert.Equal(t, "viral_steve", r.URL.Query().Get("name"))
			_, _ = w.Write([]byte(`{"chatHistory":[
				{"_id":"a","role":"user","content":"hi","date":"2024-12-21T15:48:53.195Z"},
				{"_id":"b","role":"assistant","content":"hello"}
			]}`))
		})

		msgs, err := c.FetchChallenge(context.Background())
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "a", msgs[0].ID)
		assert.True(t, msgs[0].Relayable())
		assert.Equal(t, 2024, msgs[0].Timestamp.Year())
		assert.False(t, msgs[1].Relayable())
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chatHistory":`))
		})
		_, err := c.FetchChallenge(context.Background())
		assert.ErrorIs(t, err, ledger.ErrParse)
	})

	t.Run("entry without id", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chatHistory":[{"role":"user","content":"x"}]}`))
		})
		_, err := c.FetchChallenge(context.Background())
		assert.ErrorIs(t, err, ledger.ErrParse)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.FetchChallenge(context.Background())
		assert.ErrorIs(t, err, ledger.ErrTransport)
	})
}

func TestClient_LookupBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, whitelistPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"whitelist":[
			{"username":"Someone","address":"addr-1","viral_balance":10,"signature":"sig","_id":"r1"},
			{"username":"Normal_Player","address":"addr-2","viral_balance":50000.5,"signature":"sig","_id":"r2"}
		]}`))
	})

	rec, err := c.LookupBalance(context.Background(), "normal_player")
	require.NoError(t, err)
	assert.Equal(t, "addr-2", rec.Address)
	assert.Equal(t, 50000.5, rec.Balance)
	assert.Equal(t, "r2", rec.RecordID)

	_, err = c.LookupBalance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestClient_ClaimRewardAndChat(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		got = map[string]string{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		got["path"] = r.URL.Path
		if got["username"] == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	require.NoError(t, c.ClaimReward(context.Background(), "winner"))
	assert.Equal(t, map[string]string{"path": rewardPath, "username": "winner", "secret": "s3cret"}, got)

	require.NoError(t, c.SendChat(context.Background(), "alice", `say "hi"`))
	assert.Equal(t, map[string]string{"path": chatPath, "username": "alice", "content": `say "hi"`, "secret": "s3cret"}, got)

	assert.ErrorIs(t, c.ClaimReward(context.Background(), "broken"), ledger.ErrTransport)
}

func TestClient_TransportFailure(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", BotName: "bot", Timeout: time.Second}, zerolog.Nop())
	_, err := c.LookupBalance(context.Background(), "x")
	assert.ErrorIs(t, err, ledger.ErrTransport)
}

func TestMockClient(t *testing.T) {
	fixed := time.Date(2024, 12, 21, 15, 48, 53, 0, time.UTC)
	m := NewMockClient(func() time.Time { return fixed }, zerolog.Nop())
	ctx := context.Background()

	msgs, err := m.FetchChallenge(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "1734796133000", msgs[0].ID)
	assert.Equal(t, ledger.RoleUser, msgs[0].Role)

	rec, err := m.LookupBalance(ctx, "THROWAWAY_NAME")
	require.NoError(t, err)
	assert.Equal(t, 2000000.0, rec.Balance)

	rec, err = m.LookupBalance(ctx, "poor_player")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, rec.Balance)

	_, err = m.LookupBalance(ctx, "stranger")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	assert.NoError(t, m.ClaimReward(ctx, "x"))
	assert.NoError(t, m.SendChat(ctx, "x", "y"))
}
