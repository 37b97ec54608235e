package session

import (
	"time"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

// Effect is a session-visible mutation, applied only on the mutation context.
type Effect interface {
	effect()
}

// Broadcast sends text to every participant.
type Broadcast struct {
	Kind MessageKind
	Text string
}

// Tell sends text to one participant.
type Tell struct {
	To   identity.Identity
	Text string
}

// Kick evicts a participant with a reason.
type Kick struct {
	Who    identity.Identity
	Reason string
}

// SetBypass records the participant's bypass capability as observed by the session.
type SetBypass struct {
	Who   identity.Identity
	Grant bool
}

// GiveItem adds an item to a participant's inventory.
type GiveItem struct {
	To   identity.Identity
	Item Item
}

// ConsumeItem removes one unit of the marked item from a participant.
type ConsumeItem struct {
	Who    identity.Identity
	Marker string
}

// CancelInteraction suppresses the default handling of an interaction.
type CancelInteraction struct {
	Who identity.Identity
}

// ScheduleShutdown stops the session after a delay.
type ScheduleShutdown struct {
	After time.Duration
}

func (Broadcast) effect()         {}
func (Tell) effect()              {}
func (Kick) effect()              {}
func (SetBypass) effect()         {}
func (GiveItem) effect()          {}
func (ConsumeItem) effect()       {}
func (CancelInteraction) effect() {}
func (ScheduleShutdown) effect()  {}
