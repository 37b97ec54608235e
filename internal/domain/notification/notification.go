package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Source labels the webhook username a notification is posted under.
type Source string

const (
	SourcePlayer  Source = "Player Logger"
	SourceBalance Source = "Balance Logger"
	SourceVIP     Source = "VIP Logger"
	SourceChat    Source = "Chat Logger"
	SourceError   Source = "Error Logger"
	SourcePrize   Source = "Prize Gold Bot"
)

var (
	ErrWebhookNotConfigured = errors.New("webhook URL not configured")
	ErrEmptyContent         = errors.New("notification content is empty")
)

// Notification is one outbound webhook event.
type Notification struct {
	NotificationID uuid.UUID `json:"notificationId"`
	Source         Source    `json:"source"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewNotification creates a notification.
func NewNotification(content string, source Source) *Notification {
	return &Notification{
		NotificationID: uuid.New(),
		Source:         source,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// Validate checks the notification can be delivered.
func (n *Notification) Validate() error {
	if n.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// WebhookPayload is the JSON body posted to the webhook.
type WebhookPayload struct {
	Content  string `json:"content"`
	Username string `json:"username"`
}

// Payload builds the webhook body.
func (n *Notification) Payload() WebhookPayload {
	return WebhookPayload{Content: n.Content, Username: string(n.Source)}
}

// Sink delivers notifications to the operator channel.
type Sink interface {
	// Emit sends asynchronously and never blocks; failures are logged and dropped.
	Emit(content string, source Source)
	// Deliver sends synchronously and reports failure.
	Deliver(ctx context.Context, content string, source Source) error
}
