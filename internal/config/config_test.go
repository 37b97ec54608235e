package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://viralmind.ai", cfg.LedgerBaseURL)
	assert.Equal(t, "viral_steve", cfg.BotName)
	assert.Equal(t, "viral_steve,throwaway_name", cfg.DenyList)
	assert.Equal(t, 25000.0, cfg.AdmitThreshold)
	assert.Equal(t, 1000000.0, cfg.VIPThreshold)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownDelay)
	assert.Equal(t, StoreMemory, cfg.PermissionStore)
	assert.False(t, cfg.MockAPI)
	assert.False(t, cfg.Raft.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MOCK_API", "true")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("PERMISSION_STORE", " SQLite ")
	t.Setenv("API_SECRET", "s3cret")
	t.Setenv("CLAIM_RAFT_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.MockAPI)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, StoreSQLite, cfg.PermissionStore)
	assert.Equal(t, "s3cret", cfg.APISecret)
	assert.True(t, cfg.Raft.Enabled)
	assert.Equal(t, time.Minute, cfg.Raft.ClaimLease)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("PERMISSION_STORE", "postgres")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("vip below admit", func(t *testing.T) {
		t.Setenv("VIP_THRESHOLD", "10")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "VIP_THRESHOLD")
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("PERMISSION_STORE", "redis")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("zero shutdown delay", func(t *testing.T) {
		t.Setenv("SHUTDOWN_DELAY", "0s")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SHUTDOWN_DELAY")
	})

	t.Run("zero claim lease", func(t *testing.T) {
		t.Setenv("CLAIM_RAFT_ENABLED", "true")
		t.Setenv("RAFT_CLAIM_LEASE", "0s")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RAFT_CLAIM_LEASE")
	})

	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv("HTTP_TIMEOUT", "soon")
		_, err := Load()
		require.Error(t, err)
	})
}
