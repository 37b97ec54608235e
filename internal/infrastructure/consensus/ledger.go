package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

// ErrNotLeader is returned when a claim transition is submitted to a follower.
var ErrNotLeader = errors.New("claim ledger: not the raft leader")

// Config defines one raft node runtime.
type Config struct {
	NodeID         string
	RaftAddr       string
	DataDir        string
	Bootstrap      bool
	SnapshotRetain int
	ApplyTimeout   time.Duration
	// ClaimLease bounds how long a Claiming record blocks other holders.
	ClaimLease     time.Duration
}

func (c Config) normalized() (Config, error) {
	c.NodeID = strings.TrimSpace(c.NodeID)
	c.RaftAddr = strings.TrimSpace(c.RaftAddr)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.NodeID == "" {
		return c, errors.New("node_id is required")
	}
	if c.RaftAddr == "" {
		return c, errors.New("raft_addr is required")
	}
	if c.DataDir == "" {
		return c, errors.New("data_dir is required")
	}
	if c.SnapshotRetain <= 0 {
		c.SnapshotRetain = 2
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 5 * time.Second
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = time.Minute
	}
	return c, nil
}

// Ledger replicates prize claim transitions across bridge processes.
// It implements claim.Ledger.
type Ledger struct {
	id           string
	raftAddr     string
	applyTimeout time.Duration
	logger       zerolog.Logger

	raft      *raft.Raft
	transport *raft.NetworkTransport
	machine   *machine
}

// NewLedger starts a raft node backed by bolt stores under cfg.DataDir.
func NewLedger(cfg Config, logger zerolog.Logger) (*Ledger, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	m := newMachine(cfg.ClaimLease)

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.bolt"))
	if err != nil {
		return nil, err
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.bolt"))
	if err != nil {
		return nil, err
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, cfg.SnapshotRetain, os.Stderr)
	if err != nil {
		return nil, err
	}
	transport, err := raft.NewTCPTransport(cfg.RaftAddr, nil, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, err
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	r, err := raft.NewRaft(raftCfg, &fsm{machine: m}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	l := &Ledger{
		id:           cfg.NodeID,
		raftAddr:     cfg.RaftAddr,
		applyTimeout: cfg.ApplyTimeout,
		logger:       logger.With().Str("service", "claim-ledger").Str("node_id", cfg.NodeID).Logger(),
		raft:         r,
		transport:    transport,
		machine:      m,
	}

	if cfg.Bootstrap {
		hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
		if err != nil {
			return nil, err
		}
		if !hasState {
			future := r.BootstrapCluster(raft.Configuration{Servers: []raft.Server{{
				ID:      raft.ServerID(cfg.NodeID),
				Address: raft.ServerAddress(cfg.RaftAddr),
			}}})
			if err := future.Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
				return nil, err
			}
		}
	}

	l.logger.Info().Str("raft_addr", cfg.RaftAddr).Bool("bootstrap", cfg.Bootstrap).Msg("claim ledger started")
	return l, nil
}

func (l *Ledger) Acquire(ctx context.Context, holder identity.Identity) error {
	return l.submit(ctx, OpAcquire, holder)
}

func (l *Ledger) Commit(ctx context.Context, holder identity.Identity) error {
	return l.submit(ctx, OpCommit, holder)
}

func (l *Ledger) Release(ctx context.Context, holder identity.Identity) error {
	return l.submit(ctx, OpRelease, holder)
}

func (l *Ledger) submit(ctx context.Context, op string, holder identity.Identity) error {
	data, err := json.Marshal(Command{Op: op, Holder: holder.String(), At: time.Now().UTC()})
	if err != nil {
		return err
	}
	timeout := l.applyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}
	future := l.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		if isLeadershipErr(err) {
			return fmt.Errorf("%w: leader is %q", ErrNotLeader, l.LeaderNodeID())
		}
		return err
	}
	if applyErr, ok := future.Response().(error); ok && applyErr != nil {
		return applyErr
	}
	l.logger.Debug().Str("op", op).Str("holder", holder.String()).Msg("claim transition replicated")
	return nil
}

// AddVoter joins or updates one voter in the cluster config.
func (l *Ledger) AddVoter(ctx context.Context, nodeID, raftAddr string) error {
	nodeID = strings.TrimSpace(nodeID)
	raftAddr = strings.TrimSpace(raftAddr)
	if nodeID == "" || raftAddr == "" {
		return errors.New("node_id and raft_addr are required")
	}
	cfgFuture := l.raft.GetConfiguration()
	if err := cfgFuture.Error(); err != nil {
		return err
	}
	for _, srv := range cfgFuture.Configuration().Servers {
		if srv.ID == raft.ServerID(nodeID) && srv.Address == raft.ServerAddress(raftAddr) {
			return nil
		}
		if srv.ID == raft.ServerID(nodeID) || srv.Address == raft.ServerAddress(raftAddr) {
			if err := l.raft.RemoveServer(srv.ID, 0, raftTimeout(ctx)).Error(); err != nil {
				return err
			}
		}
	}
	return l.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(raftAddr), 0, raftTimeout(ctx)).Error()
}

// RemoveServer removes one server by node ID.
func (l *Ledger) RemoveServer(ctx context.Context, nodeID string) error {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return errors.New("node_id is required")
	}
	return l.raft.RemoveServer(raft.ServerID(nodeID), 0, raftTimeout(ctx)).Error()
}

func raftTimeout(ctx context.Context) time.Duration {
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

// WaitForLeader waits until any leader is elected.
func (l *Ledger) WaitForLeader(ctx context.Context, pollInterval time.Duration) (string, error) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if leader := l.LeaderAddr(); leader != "" {
			return leader, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Ledger) ID() string         { return l.id }
func (l *Ledger) IsLeader() bool     { return l.raft.State() == raft.Leader }
func (l *Ledger) LeaderAddr() string { return strings.TrimSpace(string(l.raft.Leader())) }
func (l *Ledger) State() string      { return l.raft.State().String() }
func (l *Ledger) Snapshot() Snapshot { return l.machine.snapshot() }
func (l *Ledger) RaftAddr() string   { return l.raftAddr }

// LeaderNodeID returns the leader ID if available.
func (l *Ledger) LeaderNodeID() string {
	_, leaderID := l.raft.LeaderWithID()
	return strings.TrimSpace(string(leaderID))
}

// Shutdown stops raft and the transport.
func (l *Ledger) Shutdown() error {
	var shutdownErr error
	if l.raft != nil {
		if err := l.raft.Shutdown().Error(); err != nil {
			shutdownErr = err
		}
	}
	if l.transport != nil {
		_ = l.transport.Close()
	}
	l.logger.Info().Msg("claim ledger stopped")
	return shutdownErr
}

func isLeadershipErr(err error) bool {
	return errors.Is(err, raft.ErrNotLeader) ||
		errors.Is(err, raft.ErrLeadershipLost) ||
		errors.Is(err, raft.ErrLeadershipTransferInProgress)
}
