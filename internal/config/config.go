package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Permission store modes.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds service configuration.
type Config struct {
	APISecret     string `env:"API_SECRET"`
	WebhookURL    string `env:"WEBHOOK_URL"`
	LedgerBaseURL string `env:"LEDGER_BASE_URL" envDefault:"https://viralmind.ai"`
	BotName       string `env:"BOT_NAME" envDefault:"viral_steve"`
	MockAPI       bool   `env:"MOCK_API" envDefault:"false"`

	OperatorIdentity string `env:"OPERATOR_IDENTITY" envDefault:"viral_steve"`
	DenyList         string `env:"DENY_LIST" envDefault:"viral_steve,throwaway_name"`

	AdmitThreshold float64 `env:"ADMIT_THRESHOLD" envDefault:"25000"`
	VIPThreshold   float64 `env:"VIP_THRESHOLD" envDefault:"1000000"`
	AdmitRule      string  `env:"ADMIT_RULE" envDefault:"balance >= admit_threshold"`
	VIPRule        string  `env:"VIP_RULE" envDefault:"balance > vip_threshold"`

	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" envDefault:"10s"`

	DedupFile      string `env:"DEDUP_FILE" envDefault:"data/processed_ids.json"`
	ServerAddr     string `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	PermissionStore string `env:"PERMISSION_STORE" envDefault:"memory"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"data/permissions.db"`
	DatabaseURL     string `env:"DATABASE_URL"`
	MigrationsDir   string `env:"MIGRATIONS_DIR" envDefault:"internal/migrations"`

	Raft RaftConfig
}

// RaftConfig configures the fleet claim ledger.
type RaftConfig struct {
	Enabled    bool          `env:"CLAIM_RAFT_ENABLED" envDefault:"false"`
	NodeID     string        `env:"RAFT_NODE_ID" envDefault:"node-1"`
	Addr       string        `env:"RAFT_ADDR" envDefault:"127.0.0.1:7000"`
	DataDir    string        `env:"RAFT_DATA_DIR" envDefault:"data/raft"`
	Bootstrap  bool          `env:"RAFT_BOOTSTRAP" envDefault:"true"`
	ClaimLease time.Duration `env:"RAFT_CLAIM_LEASE" envDefault:"1m"`
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.PermissionStore = strings.ToLower(strings.TrimSpace(cfg.PermissionStore))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if !c.MockAPI {
		if _, err := url.ParseRequestURI(c.LedgerBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("LEDGER_BASE_URL: %w", err))
		}
	}
	if c.AdmitThreshold < 0 {
		errs = append(errs, errors.New("ADMIT_THRESHOLD must not be negative"))
	}
	if c.VIPThreshold < c.AdmitThreshold {
		errs = append(errs, errors.New("VIP_THRESHOLD must not be below ADMIT_THRESHOLD"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if c.ShutdownDelay <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_DELAY must be positive"))
	}
	if c.Raft.Enabled && c.Raft.ClaimLease <= 0 {
		errs = append(errs, errors.New("RAFT_CLAIM_LEASE must be positive"))
	}
	if strings.TrimSpace(c.BotName) == "" {
		errs = append(errs, errors.New("BOT_NAME is required"))
	}
	switch c.PermissionStore {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres permission store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PERMISSION_STORE %q", c.PermissionStore))
	}
	return errors.Join(errs...)
}
