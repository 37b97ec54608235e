package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/session"
	"github.com/tokengate/tokengate/internal/infrastructure/mainthread"
	"github.com/tokengate/tokengate/internal/infrastructure/sse"
)

var ErrNotOnline = errors.New("participant not online")

// Participant is one connected player.
type Participant struct {
	Identity  identity.Identity `json:"identity"`
	Bypass    bool              `json:"bypass"`
	Inventory []session.Item    `json:"inventory"`
	JoinedAt  time.Time         `json:"joinedAt"`
}

// World is the in-process session runtime. Every method except Applier and
// IsOnline must run on the mutation loop.
type World struct {
	loop     *mainthread.Loop
	hub      *sse.Hub
	shutdown func()
	logger   zerolog.Logger

	participants      map[string]*Participant
	shutdownScheduled bool
	shutdownTimer     *time.Timer
}

// New creates a world. shutdown is invoked on the loop when a scheduled
// shutdown fires.
func New(loop *mainthread.Loop, hub *sse.Hub, shutdown func(), logger zerolog.Logger) *World {
	if shutdown == nil {
		shutdown = func() {}
	}
	return &World{
		loop:         loop,
		hub:          hub,
		shutdown:     shutdown,
		logger:       logger.With().Str("service", "world").Logger(),
		participants: make(map[string]*Participant),
	}
}

// Applier returns an Applier that marshals effects onto the loop. It is
// safe to use from any goroutine.
func (w *World) Applier() session.Applier {
	return session.ApplierFunc(func(effects ...session.Effect) error {
		if len(effects) == 0 {
			return nil
		}
		if !w.loop.Post(func() { w.Apply(effects...) }) {
			w.logger.Warn().Int("effects", len(effects)).Msg("effects dropped, loop stopped")
			return mainthread.ErrLoopStopped
		}
		return nil
	})
}

// IsOnline checks presence from any goroutine by asking the loop.
func (w *World) IsOnline(ctx context.Context, id identity.Identity) (bool, error) {
	var online bool
	err := w.loop.Call(ctx, func() error {
		online = w.Online(id)
		return nil
	})
	return online, err
}

// Join registers id and reports whether it was newly added.
func (w *World) Join(id identity.Identity) (*Participant, bool) {
	if p, ok := w.participants[id.Key()]; ok {
		return p, false
	}
	p := &Participant{Identity: id, JoinedAt: time.Now().UTC()}
	w.participants[id.Key()] = p
	w.logger.Info().Str("identity", id.String()).Msg("participant joined")
	return p, true
}

// Leave removes id and closes its stream.
func (w *World) Leave(id identity.Identity) bool {
	if _, ok := w.participants[id.Key()]; !ok {
		return false
	}
	delete(w.participants, id.Key())
	w.hub.Disconnect(id)
	w.logger.Info().Str("identity", id.String()).Msg("participant left")
	return true
}

func (w *World) Online(id identity.Identity) bool {
	_, ok := w.participants[id.Key()]
	return ok
}

// Participant returns a copy of the participant state.
func (w *World) Participant(id identity.Identity) (Participant, bool) {
	p, ok := w.participants[id.Key()]
	if !ok {
		return Participant{}, false
	}
	c := *p
	c.Inventory = append([]session.Item(nil), p.Inventory...)
	return c, true
}

// Participants lists the online identities sorted by key.
func (w *World) Participants() []identity.Identity {
	keys := make([]string, 0, len(w.participants))
	for k := range w.participants {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]identity.Identity, 0, len(keys))
	for _, k := range keys {
		out = append(out, w.participants[k].Identity)
	}
	return out
}

// HeldItem returns a copy of the first stack carrying marker, or the first
// stack when marker is empty.
func (w *World) HeldItem(id identity.Identity, marker string) (*session.Item, error) {
	p, ok := w.participants[id.Key()]
	if !ok {
		return nil, ErrNotOnline
	}
	for _, it := range p.Inventory {
		if marker == "" || it.Marker == marker {
			c := it
			return &c, nil
		}
	}
	return nil, nil
}

// Chat broadcasts a participant's chat line.
func (w *World) Chat(id identity.Identity, message string) error {
	if !w.Online(id) {
		return ErrNotOnline
	}
	w.hub.BroadcastToAll(session.NewMessage(session.KindChat, fmt.Sprintf("<%s> %s", id, message)))
	return nil
}

// ShutdownScheduled reports whether a shutdown is pending.
func (w *World) ShutdownScheduled() bool {
	return w.shutdownScheduled
}

// Apply executes effects in order.
func (w *World) Apply(effects ...session.Effect) {
	for _, e := range effects {
		w.apply(e)
	}
}

func (w *World) apply(e session.Effect) {
	switch eff := e.(type) {
	case session.Broadcast:
		kind := eff.Kind
		if kind == "" {
			kind = session.KindBroadcast
		}
		w.hub.BroadcastToAll(session.NewMessage(kind, eff.Text))
	case session.Tell:
		if !w.Online(eff.To) {
			w.logger.Debug().Str("identity", eff.To.String()).Msg("tell skipped, not online")
			return
		}
		if err := w.hub.SendTo(eff.To, session.NewMessage(session.KindSystem, eff.Text)); err != nil {
			w.logger.Debug().Err(err).Str("identity", eff.To.String()).Msg("tell not delivered")
		}
	case session.Kick:
		if !w.Online(eff.Who) {
			return
		}
		_ = w.hub.SendTo(eff.Who, session.NewMessage(session.KindKick, eff.Reason))
		delete(w.participants, eff.Who.Key())
		w.hub.Disconnect(eff.Who)
		w.logger.Info().Str("identity", eff.Who.String()).Str("reason", eff.Reason).Msg("participant kicked")
	case session.SetBypass:
		if p, ok := w.participants[eff.Who.Key()]; ok {
			p.Bypass = eff.Grant
		}
	case session.GiveItem:
		p, ok := w.participants[eff.To.Key()]
		if !ok {
			return
		}
		for i := range p.Inventory {
			if p.Inventory[i].Kind == eff.Item.Kind && p.Inventory[i].Marker == eff.Item.Marker {
				p.Inventory[i].Amount += eff.Item.Amount
				return
			}
		}
		p.Inventory = append(p.Inventory, eff.Item)
	case session.ConsumeItem:
		p, ok := w.participants[eff.Who.Key()]
		if !ok {
			return
		}
		for i := range p.Inventory {
			if p.Inventory[i].Marker != eff.Marker {
				continue
			}
			p.Inventory[i].Amount--
			if p.Inventory[i].Amount <= 0 {
				p.Inventory = append(p.Inventory[:i], p.Inventory[i+1:]...)
			}
			return
		}
	case session.CancelInteraction:
		w.logger.Debug().Str("identity", eff.Who.String()).Msg("interaction cancelled")
	case session.ScheduleShutdown:
		if w.shutdownScheduled {
			return
		}
		w.shutdownScheduled = true
		w.shutdownTimer = w.loop.After(eff.After, w.shutdown)
		w.logger.Warn().Dur("after", eff.After).Msg("session shutdown scheduled")
	default:
		w.logger.Warn().Str("effect", fmt.Sprintf("%T", e)).Msg("unknown effect")
	}
}

// Close stops a pending shutdown timer and closes all streams.
func (w *World) Close() {
	if w.shutdownTimer != nil {
		w.shutdownTimer.Stop()
	}
	w.hub.Stop()
}
