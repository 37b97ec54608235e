package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/internal/domain/session"
)

func TestHubBroadcastAndSend(t *testing.T) {
	h := NewHub()
	alice := session.NewStream("Alice")
	bob := session.NewStream("bob")
	h.Register(alice)
	h.Register(bob)
	require.Equal(t, 2, h.Count())

	h.BroadcastToAll(session.NewMessage(session.KindBroadcast, "hello all"))
	require.NoError(t, h.SendTo("ALICE", session.NewMessage(session.KindSystem, "hi alice")))

	assert.Equal(t, "hello all", (<-alice.MessageChan).Text)
	assert.Equal(t, "hi alice", (<-alice.MessageChan).Text)
	assert.Equal(t, "hello all", (<-bob.MessageChan).Text)
	assert.Empty(t, bob.MessageChan)

	assert.ErrorIs(t, h.SendTo("carol", session.NewMessage(session.KindSystem, "x")), ErrStreamNotFound)
}

func TestHubReRegisterClosesOldStream(t *testing.T) {
	h := NewHub()
	first := session.NewStream("alice")
	second := session.NewStream("alice")
	h.Register(first)
	h.Register(second)

	_, open := <-first.MessageChan
	assert.False(t, open)
	assert.Equal(t, 1, h.Count())

	h.Unregister(first)
	assert.Equal(t, 1, h.Count())
	h.Unregister(second)
	assert.Equal(t, 0, h.Count())
}

func TestHubSendToFullStream(t *testing.T) {
	h := NewHub()
	s := &session.Stream{Key: "x", Identity: "x", MessageChan: make(chan *session.Message, 1)}
	h.Register(s)

	require.NoError(t, h.SendTo("x", session.NewMessage(session.KindSystem, "1")))
	assert.ErrorIs(t, h.SendTo("x", session.NewMessage(session.KindSystem, "2")), ErrStreamFull)
}

func TestHubDisconnectAndStop(t *testing.T) {
	h := NewHub()
	a := session.NewStream("a")
	b := session.NewStream("b")
	h.Register(a)
	h.Register(b)

	h.Disconnect("A")
	_, open := <-a.MessageChan
	assert.False(t, open)

	h.Stop()
	_, open = <-b.MessageChan
	assert.False(t, open)
	assert.Equal(t, 0, h.Count())
}
