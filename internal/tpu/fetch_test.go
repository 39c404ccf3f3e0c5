package tpu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunFetchStage_MergesForwardsIntoDirect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	forwards := make(chan PacketBatch, 4)
	direct := make(chan PacketBatch, 4)

	go RunFetchStage(ctx, forwards, direct, nil)

	forwards <- PacketBatch{Packets: []Packet{{Data: []byte("x")}}}

	select {
	case batch := <-direct:
		require.Len(t, batch.Packets, 1)
		require.Equal(t, []byte("x"), batch.Packets[0].Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded batch to be merged into direct")
	}
}

func TestRunFetchStage_ExitsOnForwardsClosed(t *testing.T) {
	ctx := context.Background()

	forwards := make(chan PacketBatch)
	direct := make(chan PacketBatch, 1)

	done := make(chan struct{})
	go func() {
		RunFetchStage(ctx, forwards, direct, nil)
		close(done)
	}()

	close(forwards)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunFetchStage did not exit after forwards channel closed")
	}
}

func TestRunFetchStage_ExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	forwards := make(chan PacketBatch)
	direct := make(chan PacketBatch, 1)

	done := make(chan struct{})
	go func() {
		RunFetchStage(ctx, forwards, direct, nil)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunFetchStage did not exit after context cancellation")
	}
}
