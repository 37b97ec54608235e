package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

// EventType enumerates the session events the bridge reacts to.
type EventType string

const (
	EventJoined     EventType = "JOINED"
	EventInteracted EventType = "INTERACTED"
	EventChatSent   EventType = "CHAT_SENT"
)

// Action is the kind of interaction a participant performed.
type Action string

const (
	ActionRightClickAir   Action = "RIGHT_CLICK_AIR"
	ActionRightClickBlock Action = "RIGHT_CLICK_BLOCK"
	ActionLeftClickAir    Action = "LEFT_CLICK_AIR"
	ActionLeftClickBlock  Action = "LEFT_CLICK_BLOCK"
)

// IsRightClick reports whether the action is a use action.
func (a Action) IsRightClick() bool {
	return a == ActionRightClickAir || a == ActionRightClickBlock
}

// MarkerPrizeGold tags the consumable prize item.
const MarkerPrizeGold = "prize_gold"

// Item is a held inventory stack.
type Item struct {
	Kind   string `json:"kind"`
	Marker string `json:"marker,omitempty"`
	Amount int    `json:"amount"`
}

// IsPrize reports whether the item carries the prize marker.
func (i *Item) IsPrize() bool {
	return i != nil && i.Marker == MarkerPrizeGold && i.Amount > 0
}

// NewPrizeGold builds one prize item.
func NewPrizeGold() Item {
	return Item{Kind: "GOLD_INGOT", Marker: MarkerPrizeGold, Amount: 1}
}

// Event is one session occurrence handed to the bridge.
type Event struct {
	Type     EventType
	Identity identity.Identity
	Action   Action
	Item     *Item
	Message  string
	At       time.Time
}

// Handler reacts to one event and describes the effects to apply. Handlers
// never mutate session state directly.
type Handler func(ctx context.Context, e Event) []Effect

// Applier applies effects on the session's mutation context. It returns an
// error when the effects could not be scheduled.
type Applier interface {
	Apply(effects ...Effect) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(effects ...Effect) error

func (f ApplierFunc) Apply(effects ...Effect) error { return f(effects...) }

// MessageKind classifies stream messages.
type MessageKind string

const (
	KindChat      MessageKind = "chat"
	KindSystem    MessageKind = "system"
	KindKick      MessageKind = "kick"
	KindBroadcast MessageKind = "broadcast"
)

// Message is delivered to a participant's stream.
type Message struct {
	ID        string          `json:"id"`
	Kind      MessageKind     `json:"kind"`
	Text      string          `json:"text"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a stream message.
func NewMessage(kind MessageKind, text string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

// Stream is one connected participant's outbound channel.
type Stream struct {
	Key         string
	Identity    identity.Identity
	ConnectedAt time.Time
	MessageChan chan *Message
}

// NewStream creates a stream with a bounded buffer.
func NewStream(id identity.Identity) *Stream {
	return &Stream{
		Key:         id.Key(),
		Identity:    id,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Message, 100),
	}
}

// Close closes the stream's message channel.
func (s *Stream) Close() {
	close(s.MessageChan)
}
