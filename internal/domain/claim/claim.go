package claim

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

// State is the prize claim lifecycle.
type State int32

const (
	StateUnclaimed State = iota
	StateClaiming
	StateClaimed
)

func (s State) String() string {
	switch s {
	case StateUnclaimed:
		return "UNCLAIMED"
	case StateClaiming:
		return "CLAIMING"
	case StateClaimed:
		return "CLAIMED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrRaceRejected      = errors.New("claim already in progress or completed")
	ErrInvalidTransition = errors.New("invalid claim transition")
)

// Machine holds the process-wide claim state. All transitions are
// compare-and-swap; Claimed is terminal.
type Machine struct {
	state atomic.Int32
}

// NewMachine returns a machine in StateUnclaimed.
func NewMachine() *Machine {
	return &Machine{}
}

func (m *Machine) State() State {
	return State(m.state.Load())
}

// Begin moves Unclaimed to Claiming. Exactly one concurrent caller wins;
// the rest get ErrRaceRejected.
func (m *Machine) Begin() error {
	if !m.state.CompareAndSwap(int32(StateUnclaimed), int32(StateClaiming)) {
		return ErrRaceRejected
	}
	return nil
}

// Complete moves Claiming to Claimed.
func (m *Machine) Complete() error {
	if !m.state.CompareAndSwap(int32(StateClaiming), int32(StateClaimed)) {
		return ErrInvalidTransition
	}
	return nil
}

// Abort moves Claiming back to Unclaimed so a later trigger can retry.
func (m *Machine) Abort() error {
	if !m.state.CompareAndSwap(int32(StateClaiming), int32(StateUnclaimed)) {
		return ErrInvalidTransition
	}
	return nil
}

// Ledger mirrors the local machine across several bridge processes.
// Acquire fails with ErrRaceRejected when another holder is claiming or
// has claimed.
type Ledger interface {
	Acquire(ctx context.Context, holder identity.Identity) error
	Commit(ctx context.Context, holder identity.Identity) error
	Release(ctx context.Context, holder identity.Identity) error
}

// LocalLedger is the single-process ledger; the Machine alone decides.
type LocalLedger struct{}

func (LocalLedger) Acquire(context.Context, identity.Identity) error { return nil }
func (LocalLedger) Commit(context.Context, identity.Identity) error  { return nil }
func (LocalLedger) Release(context.Context, identity.Identity) error { return nil }
