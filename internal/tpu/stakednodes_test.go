package tpu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jito-foundation/relayer/internal/chainrpc"
	"github.com/jito-foundation/relayer/internal/txn"
)

type fakeStakeSource struct {
	entries []chainrpc.StakeEntry
	err     error
}

func (f *fakeStakeSource) GetStakedNodes(context.Context) ([]chainrpc.StakeEntry, error) {
	return f.entries, f.err
}

func TestStakedNodesSnapshot_DefaultsToEmpty(t *testing.T) {
	s := NewStakedNodesSnapshot()
	w, staked := s.Load().Weight(txn.PublicKey{1})
	require.Zero(t, w)
	require.False(t, staked)
	require.Zero(t, s.Load().Total())
}

func TestRunStakedNodesUpdater_RefreshesFromSource(t *testing.T) {
	var identity txn.PublicKey
	identity[0] = 0xAA

	source := &fakeStakeSource{entries: []chainrpc.StakeEntry{{Identity: identity, Lamports: 100}}}
	snapshot := NewStakedNodesSnapshot()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunStakedNodesUpdater(ctx, snapshot, StakedNodesUpdaterConfig{Source: source, RefreshInterval: time.Hour})
		close(done)
	}()

	require.Eventually(t, func() bool {
		w, staked := snapshot.Load().Weight(identity)
		return staked && w == 100
	}, time.Second, time.Millisecond)

	require.EqualValues(t, 100, snapshot.Load().Total())

	cancel()
	<-done
}

func TestRunStakedNodesUpdater_OverridesWinOverSource(t *testing.T) {
	var identity txn.PublicKey
	identity[0] = 0xBB

	source := &fakeStakeSource{entries: []chainrpc.StakeEntry{{Identity: identity, Lamports: 50}}}
	snapshot := NewStakedNodesSnapshot()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunStakedNodesUpdater(ctx, snapshot, StakedNodesUpdaterConfig{
			Source:          source,
			Overrides:       map[txn.PublicKey]uint64{identity: 9000},
			RefreshInterval: time.Hour,
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		w, staked := snapshot.Load().Weight(identity)
		return staked && w == 9000
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
