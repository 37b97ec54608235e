package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/notification"
)

// Service posts notifications to the operator webhook.
// It implements notification.Sink.
type Service struct {
	webhookURL string
	client     *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
	pending    sync.WaitGroup
}

// NewService creates a webhook sink. An empty webhookURL disables delivery.
func NewService(webhookURL string, timeout time.Duration, logger zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger.With().Str("service", "notification").Logger(),
	}
}

// Emit delivers in the background and never blocks the caller.
func (s *Service) Emit(content string, source notification.Source) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.Deliver(ctx, content, source); err != nil {
			s.logger.Warn().Err(err).Str("source", string(source)).Msg("notification dropped")
		}
	}()
}

// Deliver posts one notification and reports failure.
func (s *Service) Deliver(ctx context.Context, content string, source notification.Source) error {
	n := notification.NewNotification(content, source)
	if err := n.Validate(); err != nil {
		return err
	}
	if s.webhookURL == "" {
		s.logger.Warn().Str("source", string(source)).Msg("webhook URL not configured, skipping notification")
		return notification.ErrWebhookNotConfigured
	}
	return s.sendViaWebhook(ctx, n)
}

// Wait blocks until all emitted notifications have finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) sendViaWebhook(ctx context.Context, n *notification.Notification) error {
	body, err := json.Marshal(n.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Notification-ID", n.NotificationID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Debug().
			Str("notification_id", n.NotificationID.String()).
			Str("source", string(n.Source)).
			Int("status_code", resp.StatusCode).
			Msg("webhook delivery succeeded")
		return nil
	}

	s.logger.Warn().
		Str("notification_id", n.NotificationID.String()).
		Int("status_code", resp.StatusCode).
		Str("response_body", string(respBody)).
		Msg("webhook delivery failed")
	return fmt.Errorf("webhook returned non-success status: %d", resp.StatusCode)
}
