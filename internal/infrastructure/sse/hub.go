package sse

import (
	"errors"
	"sync"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/session"
)

var (
	ErrStreamNotFound = errors.New("stream not found")
	ErrStreamFull     = errors.New("stream message channel full")
)

// Hub manages participant streams.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]*session.Stream
}

func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]*session.Stream),
	}
}

// Register attaches a stream, replacing and closing any previous stream for
// the same identity.
func (h *Hub) Register(stream *session.Stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.streams[stream.Key]; ok && old != stream {
		old.Close()
	}
	h.streams[stream.Key] = stream
}

// Unregister detaches stream if it is still the registered one.
func (h *Hub) Unregister(stream *session.Stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.streams[stream.Key]; ok && c == stream {
		c.Close()
		delete(h.streams, stream.Key)
	}
}

// Disconnect closes the identity's stream, if any.
func (h *Hub) Disconnect(id identity.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.streams[id.Key()]; ok {
		c.Close()
		delete(h.streams, id.Key())
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}

func (h *Hub) BroadcastToAll(message *session.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.streams {
		trySend(c, message)
	}
}

func (h *Hub) SendTo(id identity.Identity, message *session.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.streams[id.Key()]
	if c == nil {
		return ErrStreamNotFound
	}
	if !trySend(c, message) {
		return ErrStreamFull
	}
	return nil
}

// Stop closes every stream.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, c := range h.streams {
		c.Close()
		delete(h.streams, key)
	}
}

func trySend(c *session.Stream, msg *session.Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
