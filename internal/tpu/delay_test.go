package tpu

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayBuffer_EnqueueRecv(t *testing.T) {
	d := NewDelayBuffer(2)
	ctx := context.Background()

	require.NoError(t, d.Enqueue(ctx, PacketBatch{Packets: []Packet{{Data: []byte("a")}}}))
	require.Equal(t, 1, d.Len())

	select {
	case stamped := <-d.Recv():
		require.Len(t, stamped.Batch.Packets, 1)
		require.WithinDuration(t, time.Now(), stamped.StampAt, time.Second)
	default:
		t.Fatal("expected a stamped batch to be available")
	}
}

func TestDelayBuffer_EnqueueBlocksWhenFull(t *testing.T) {
	d := NewDelayBuffer(1)
	ctx := context.Background()

	require.NoError(t, d.Enqueue(ctx, PacketBatch{}))

	blockedCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := d.Enqueue(blockedCtx, PacketBatch{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDelayBuffer_DefaultCapacity(t *testing.T) {
	d := NewDelayBuffer(0)
	require.Equal(t, DefaultDelayBufferCapacity, cap(d.ch))
}
