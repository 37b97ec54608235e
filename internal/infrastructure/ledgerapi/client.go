package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/ledger"
)

const (
	challengePath = "/api/challenges/get-challenge"
	whitelistPath = "/api/minecraft/whitelist"
	rewardPath    = "/api/minecraft/reward"
	chatPath      = "/api/minecraft/chat"
)

// Config configures the HTTP ledger client.
type Config struct {
	BaseURL string
	BotName string
	Secret  string
	Timeout time.Duration
}

// Client talks to the remote ledger service over HTTP.
type Client struct {
	baseURL string
	botName string
	secret  string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates an HTTP ledger client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		botName: cfg.BotName,
		secret:  cfg.Secret,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("service", "ledger_client").Logger(),
	}
}

type challengeResponse struct {
	ChatHistory []struct {
		ID      *string `json:"_id"`
		Role    *string `json:"role"`
		Content string  `json:"content"`
		Date    string  `json:"date"`
	} `json:"chatHistory"`
}

type whitelistResponse struct {
	Whitelist []ledger.BalanceRecord `json:"whitelist"`
}

type rewardRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

type chatRequest struct {
	Username string `json:"username"`
	Content  string `json:"content"`
	Secret   string `json:"secret"`
}

// FetchChallenge returns the bot's chat history in server order.
func (c *Client) FetchChallenge(ctx context.Context) ([]ledger.ChallengeMessage, error) {
	body, err := c.get(ctx, challengePath)
	if err != nil {
		return nil, err
	}
	var resp challengeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: challenge: %v", ledger.ErrParse, err)
	}
	if resp.ChatHistory == nil {
		return nil, fmt.Errorf("%w: challenge: missing chatHistory", ledger.ErrParse)
	}
	out := make([]ledger.ChallengeMessage, 0, len(resp.ChatHistory))
	for i, m := range resp.ChatHistory {
		if m.ID == nil || m.Role == nil {
			return nil, fmt.Errorf("%w: challenge: entry %d missing _id or role", ledger.ErrParse, i)
		}
		msg := ledger.ChallengeMessage{ID: *m.ID, Role: *m.Role, Content: m.Content}
		if m.Date != "" {
			if ts, err := time.Parse(time.RFC3339Nano, m.Date); err == nil {
				msg.Timestamp = ts
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// LookupBalance finds id in the bot's whitelist.
func (c *Client) LookupBalance(ctx context.Context, id identity.Identity) (*ledger.BalanceRecord, error) {
	body, err := c.get(ctx, whitelistPath)
	if err != nil {
		return nil, err
	}
	var resp whitelistResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: whitelist: %v", ledger.ErrParse, err)
	}
	if resp.Whitelist == nil {
		return nil, fmt.Errorf("%w: whitelist: missing whitelist", ledger.ErrParse)
	}
	return findRecord(resp.Whitelist, id)
}

// ClaimReward asks the ledger to pay out the prize to id.
func (c *Client) ClaimReward(ctx context.Context, id identity.Identity) error {
	_, err := c.post(ctx, rewardPath, rewardRequest{Username: id.String(), Secret: c.secret})
	return err
}

// SendChat forwards one chat line to the ledger.
func (c *Client) SendChat(ctx context.Context, id identity.Identity, content string) error {
	_, err := c.post(ctx, chatPath, chatRequest{Username: id.String(), Content: content, Secret: c.secret})
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u := c.baseURL + path + "?name=" + url.QueryEscape(c.botName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ledger.ErrTransport, err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ledger.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ledger.ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ledger.ErrTransport, req.URL.Path, err)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status_code", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("ledger call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ledger.ErrTransport, req.Method, req.URL.Path, resp.StatusCode, snippet)
	}
	return body, nil
}

func findRecord(entries []ledger.BalanceRecord, id identity.Identity) (*ledger.BalanceRecord, error) {
	for i := range entries {
		if entries[i].Identity.Equal(id) {
			rec := entries[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
}
