package relayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jito-foundation/relayer/internal/relayerpb"
	"github.com/jito-foundation/relayer/internal/schedule"
	"github.com/jito-foundation/relayer/internal/tpu"
	"github.com/jito-foundation/relayer/internal/txn"
)

func TestBuildForwardingSet_ForwardAllReturnsEverySubscriber(t *testing.T) {
	var a, b txn.PublicKey
	a[0], b[0] = 1, 2
	snapshot := []*Subscriber{newSubscriber(a, 1), newSubscriber(b, 1)}

	set := BuildForwardingSet(snapshot, true, nil, 2, 100)
	require.Len(t, set, 2)
}

func TestBuildForwardingSet_SelectsOnlyLeaders(t *testing.T) {
	var leader, notLeader txn.PublicKey
	leader[0] = 1
	notLeader[0] = 2

	cache := schedule.NewMemory(2)
	cache.Replace(map[uint64][32]byte{100: [32]byte(leader), 101: [32]byte(leader)})

	snapshot := []*Subscriber{newSubscriber(leader, 1), newSubscriber(notLeader, 1)}
	set := BuildForwardingSet(snapshot, false, cache, 2, 100)

	require.Len(t, set, 1)
	require.Equal(t, leader, set[0].Identity)
}

func TestBuildForwardingSet_EmptyLeadersYieldsEmptySet(t *testing.T) {
	var a txn.PublicKey
	a[0] = 1
	snapshot := []*Subscriber{newSubscriber(a, 1)}

	cache := schedule.NewMemory(2)
	set := BuildForwardingSet(snapshot, false, cache, 2, 100)
	require.Empty(t, set)
}

func TestProject_FiltersDiscardedAndChunks(t *testing.T) {
	batch := &tpu.PacketBatch{Packets: []tpu.Packet{
		{Data: []byte("a")},
		{Data: []byte("b"), Discard: true},
		{Data: []byte("c")},
		{Data: []byte("d")},
	}}

	chunks := Project(context.Background(), batch, nil, nil, 2)
	require.Len(t, chunks, 2)
	require.Len(t, chunks[0], 2)
	require.Len(t, chunks[1], 1)
}

func TestProject_EmptyProjectionYieldsNoChunks(t *testing.T) {
	batch := &tpu.PacketBatch{Packets: []tpu.Packet{{Discard: true}}}
	chunks := Project(context.Background(), batch, nil, nil, 2)
	require.Nil(t, chunks)
}

func TestDispatch_SentIncrementsForwardedCounter(t *testing.T) {
	var id txn.PublicKey
	id[0] = 1
	sub := newSubscriber(id, 10)

	chunks := [][]relayerpb.Packet{{{Data: []byte("a")}}}
	failed := Dispatch([]*Subscriber{sub}, chunks, nil)
	require.Empty(t, failed)

	select {
	case resp := <-sub.Recv():
		require.NotNil(t, resp.Batch)
		require.Len(t, resp.Batch.Packets, 1)
	default:
		t.Fatal("expected a batch response to be queued for the subscriber")
	}
}

// TestFanOutClosedSubscriberShortensPass verifies the preserved observable
// quirk (SPEC_FULL.md's binding decision on the §9 open question): a
// SendClosed outcome from one subscriber stops the attempt to send the
// *current chunk* to every subscriber ordered after it in forwardingSet,
// even though later subscribers are healthy and would have accepted it.
func TestFanOutClosedSubscriberShortensPass(t *testing.T) {
	var closedID, afterID txn.PublicKey
	closedID[0] = 1
	afterID[0] = 2

	closedSub := newSubscriber(closedID, 10)
	closedSub.Close()
	afterSub := newSubscriber(afterID, 10)

	chunks := [][]relayerpb.Packet{{{Data: []byte("a")}}}
	failed := Dispatch([]*Subscriber{closedSub, afterSub}, chunks, nil)

	require.Len(t, failed, 1)
	require.Equal(t, closedID, failed[0].Identity)

	select {
	case <-afterSub.Recv():
		t.Fatal("subscriber ordered after a closed one in the same chunk must not receive it")
	default:
	}
}

func TestDispatch_DedupesRepeatedClosedAcrossChunks(t *testing.T) {
	var id txn.PublicKey
	id[0] = 1
	sub := newSubscriber(id, 10)
	sub.Close()

	chunks := [][]relayerpb.Packet{{{Data: []byte("a")}}, {{Data: []byte("b")}}}
	failed := Dispatch([]*Subscriber{sub}, chunks, nil)
	require.Len(t, failed, 1)
}
