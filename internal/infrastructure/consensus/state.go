package consensus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tokengate/tokengate/internal/domain/claim"
	"github.com/tokengate/tokengate/internal/domain/identity"
)

// Command ops replicated through the log.
const (
	OpAcquire = "acquire"
	OpCommit  = "commit"
	OpRelease = "release"
)

// Command is one replicated claim transition.
type Command struct {
	Op     string    `json:"op"`
	Holder string    `json:"holder"`
	At     time.Time `json:"at"`
}

// Snapshot is the replicated claim state.
type Snapshot struct {
	State     claim.State `json:"state"`
	Holder    string      `json:"holder,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// machine is the deterministic claim state replicated by raft. A Claiming
// record older than lease, measured on command timestamps, can be taken
// over. A zero lease never expires.
type machine struct {
	mu    sync.RWMutex
	snap  Snapshot
	lease time.Duration
}

func newMachine(lease time.Duration) *machine {
	return &machine{snap: Snapshot{State: claim.StateUnclaimed}, lease: lease}
}

func (m *machine) apply(cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	holder := identity.Identity(cmd.Holder)
	switch cmd.Op {
	case OpAcquire:
		if !m.acquirable(holder, cmd.At) {
			return claim.ErrRaceRejected
		}
		m.snap.State = claim.StateClaiming
		m.snap.Holder = cmd.Holder
	case OpCommit:
		if m.snap.State != claim.StateClaiming || !holder.Equal(identity.Identity(m.snap.Holder)) {
			return claim.ErrInvalidTransition
		}
		m.snap.State = claim.StateClaimed
	case OpRelease:
		if m.snap.State != claim.StateClaiming || !holder.Equal(identity.Identity(m.snap.Holder)) {
			return claim.ErrInvalidTransition
		}
		m.snap.State = claim.StateUnclaimed
		m.snap.Holder = ""
	default:
		return fmt.Errorf("unknown claim op %q", cmd.Op)
	}
	m.snap.UpdatedAt = cmd.At
	return nil
}

// acquirable reports whether holder may take the claim at the given time.
// Re-acquiring an own Claiming record refreshes it.
func (m *machine) acquirable(holder identity.Identity, at time.Time) bool {
	switch m.snap.State {
	case claim.StateUnclaimed:
		return true
	case claim.StateClaiming:
		if holder.Equal(identity.Identity(m.snap.Holder)) {
			return true
		}
		return m.lease > 0 && at.Sub(m.snap.UpdatedAt) >= m.lease
	default:
		return false
	}
}

func (m *machine) snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func (m *machine) marshal() ([]byte, error) {
	return json.Marshal(m.snapshot())
}

func (m *machine) unmarshal(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	return nil
}
