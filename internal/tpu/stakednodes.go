package tpu

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jito-foundation/relayer/internal/chainrpc"
	"github.com/jito-foundation/relayer/internal/logging"
	"github.com/jito-foundation/relayer/internal/txn"
)

// DefaultStakedNodesRefreshInterval is how often the Staked Nodes Updater
// (C2) polls the chain RPC load balancer for the current stake table.
const DefaultStakedNodesRefreshInterval = 10 * time.Second

// StakedNodes is an immutable snapshot of validator identity -> stake
// weight (§3). Readers (the QUIC admission path) always observe a
// consistent snapshot; the updater publishes a new one atomically on each
// refresh.
type StakedNodes struct {
	weights map[txn.PublicKey]uint64
	total   uint64
}

// emptyStakedNodes is the zero snapshot, returned before the first
// successful refresh.
var emptyStakedNodes = &StakedNodes{weights: map[txn.PublicKey]uint64{}}

// Weight returns identity's stake weight in lamports, and whether it is
// staked at all (weight > 0).
func (s *StakedNodes) Weight(identity txn.PublicKey) (uint64, bool) {
	if s == nil {
		return 0, false
	}
	w, ok := s.weights[identity]
	return w, ok && w > 0
}

// Total returns the total stake across all known identities, used as the
// denominator for StakeShare.
func (s *StakedNodes) Total() uint64 {
	if s == nil {
		return 0
	}
	return s.total
}

// StakedNodesSnapshot is a single-writer, many-reader atomic cell holding
// the current StakedNodes snapshot, matching the "Arc<RwLock<StakedNodes>>"
// shape described in §3/§5 via a copy-on-write pointer swap instead of a
// lock.
type StakedNodesSnapshot struct {
	v atomic.Pointer[StakedNodes]
}

// NewStakedNodesSnapshot returns a snapshot cell initialized to the empty
// table.
func NewStakedNodesSnapshot() *StakedNodesSnapshot {
	s := &StakedNodesSnapshot{}
	s.v.Store(emptyStakedNodes)
	return s
}

// Load returns the current snapshot. Never nil.
func (s *StakedNodesSnapshot) Load() *StakedNodes {
	if v := s.v.Load(); v != nil {
		return v
	}
	return emptyStakedNodes
}

// Store atomically publishes a new snapshot.
func (s *StakedNodesSnapshot) Store(v *StakedNodes) {
	if v == nil {
		v = emptyStakedNodes
	}
	s.v.Store(v)
}

// StakedNodesUpdaterConfig configures the periodic refresh (C2).
type StakedNodesUpdaterConfig struct {
	// Source is polled on each tick for the current stake table.
	Source chainrpc.StakeSource

	// Overrides is a static identity -> stake weight map that always wins
	// over whatever Source reports for the same identity (§4.2/§6
	// staked_nodes_overrides).
	Overrides map[txn.PublicKey]uint64

	// RefreshInterval defaults to DefaultStakedNodesRefreshInterval.
	RefreshInterval time.Duration

	Logger *logging.Logger
}

// RunStakedNodesUpdater polls cfg.Source on cfg.RefreshInterval, merges in
// the static overrides, and publishes a new snapshot to dst on every
// successful refresh. It blocks until ctx is canceled. RPC errors are
// logged and retried on the next tick; they never propagate (§4.2, §7
// TransientIO).
func RunStakedNodesUpdater(ctx context.Context, dst *StakedNodesSnapshot, cfg StakedNodesUpdaterConfig) {
	log := cfg.Logger
	if log == nil {
		log = logging.NoOp()
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = DefaultStakedNodesRefreshInterval
	}

	refresh := func() {
		if cfg.Source == nil {
			return
		}
		entries, err := cfg.Source.GetStakedNodes(ctx)
		if err != nil {
			log.Warning().Err(err).Log("staked nodes refresh failed")
			return
		}

		weights := make(map[txn.PublicKey]uint64, len(entries)+len(cfg.Overrides))
		var total uint64
		for _, e := range entries {
			weights[e.Identity] = e.Lamports
			total += e.Lamports
		}
		for identity, w := range cfg.Overrides {
			if prev, ok := weights[identity]; ok {
				total -= prev
			}
			weights[identity] = w
			total += w
		}

		dst.Store(&StakedNodes{weights: weights, total: total})
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
