package tpu

import (
	"context"
	"time"
)

// DefaultDelayBufferCapacity is the bounded capacity of the delay/hand-off
// buffer between the sigverify stage and the relayer event loop (§4.5).
const DefaultDelayBufferCapacity = 10_000

// DelayBuffer is the bounded hand-off queue between C4 (sigverify) and C6
// (the relayer event loop). Enqueue stamps each batch with the current
// instant immediately before handing it to the channel; if the buffer is
// full, Enqueue blocks rather than dropping the batch, per §4.5's
// deliberate back-pressure: it is preferable to slow ingest than to
// silently drop post-verification work.
type DelayBuffer struct {
	ch chan StampedBatch
}

// NewDelayBuffer constructs a DelayBuffer with the given capacity.
// Capacity <= 0 falls back to DefaultDelayBufferCapacity.
func NewDelayBuffer(capacity int) *DelayBuffer {
	if capacity <= 0 {
		capacity = DefaultDelayBufferCapacity
	}
	return &DelayBuffer{ch: make(chan StampedBatch, capacity)}
}

// Enqueue stamps batch with time.Now and hands it to the buffer, blocking
// if the buffer is full. Returns ctx.Err() if ctx is canceled before the
// send completes, implementing the Shutdown error taxonomy entry for a
// blocked producer on a stage exiting (§7).
func (d *DelayBuffer) Enqueue(ctx context.Context, batch PacketBatch) error {
	stamped := StampedBatch{Batch: batch, StampAt: time.Now()}
	select {
	case d.ch <- stamped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the channel the relayer event loop (C6) selects on to
// receive stamped batches.
func (d *DelayBuffer) Recv() <-chan StampedBatch {
	return d.ch
}

// Len reports the number of batches currently queued, used for the
// delay_packet_receiver_max_len high-water-mark metric: the relayer event
// loop samples it every iteration and publishes the maximum on the metrics
// tick.
func (d *DelayBuffer) Len() int {
	return len(d.ch)
}

// Close closes the underlying channel. Only the sole producer (the
// sigverify stage) may call this, once, after it has stopped calling
// Enqueue.
func (d *DelayBuffer) Close() {
	close(d.ch)
}
