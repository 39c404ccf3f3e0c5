package relayer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jito-foundation/relayer/internal/relayerpb"
	"github.com/jito-foundation/relayer/internal/txn"
)

func TestRegistry_InsertVacantNotDuplicate(t *testing.T) {
	r := NewRegistry()
	var identity txn.PublicKey
	identity[0] = 1

	sub, duplicate := r.Insert(identity, 10)
	require.False(t, duplicate)
	require.Equal(t, identity, sub.Identity)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_InsertDuplicateClosesPriorSubscriber(t *testing.T) {
	r := NewRegistry()
	var identity txn.PublicKey
	identity[0] = 2

	first, _ := r.Insert(identity, 10)
	second, duplicate := r.Insert(identity, 10)
	require.True(t, duplicate)

	select {
	case <-first.Done():
	default:
		t.Fatal("expected prior subscriber to be closed on duplicate insert")
	}

	require.Equal(t, 1, r.Len())
	snapshot := r.Snapshot()
	require.Len(t, snapshot, 1)
	require.Same(t, second, snapshot[0])
}

func TestRegistry_DropManyLeavesReplacedSlotAlone(t *testing.T) {
	r := NewRegistry()
	var identity txn.PublicKey
	identity[0] = 3

	first, _ := r.Insert(identity, 10)
	second, _ := r.Insert(identity, 10)

	n := r.DropMany([]*Subscriber{first})
	require.Zero(t, n, "dropping a replaced subscriber must not evict the newer one")
	require.Equal(t, 1, r.Len())

	n = r.DropMany([]*Subscriber{second})
	require.Equal(t, 1, n)
	require.Zero(t, r.Len())
}

func TestSubscriber_TrySend(t *testing.T) {
	var identity txn.PublicKey
	sub := newSubscriber(identity, 1)

	require.Equal(t, SendSent, sub.TrySend(&relayerpb.SubscribeResponse{}))
	require.Equal(t, SendWouldBlock, sub.TrySend(&relayerpb.SubscribeResponse{}))

	sub.Close()
	require.Equal(t, SendClosed, sub.TrySend(&relayerpb.SubscribeResponse{}))
}

func TestSubscriber_CloseIdempotent(t *testing.T) {
	var identity txn.PublicKey
	sub := newSubscriber(identity, 1)
	sub.Close()
	require.NotPanics(t, sub.Close)
}
