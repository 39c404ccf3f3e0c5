package relayer

import (
	"context"
	"time"

	"github.com/jito-foundation/relayer/internal/altcache"
	"github.com/jito-foundation/relayer/internal/obs"
	"github.com/jito-foundation/relayer/internal/schedule"
	"github.com/jito-foundation/relayer/internal/relayerpb"
	"github.com/jito-foundation/relayer/internal/tpu"
	"github.com/jito-foundation/relayer/internal/txn"
)

// DefaultValidatorPacketBatchSize is the default projected sub-batch size
// (§6 validator_packet_batch_size) if Config leaves it unset.
const DefaultValidatorPacketBatchSize = 32

// BuildForwardingSet derives the current ForwardingSet (§3, §4.8) from a
// registry snapshot: either every connected subscriber (forward_all), or
// the intersection of connected subscribers with the leaders of
// [slot, slot+L*K) (§6 leader_lookahead, consecutive_leader_slots).
// Recomputation is the caller's responsibility to trigger only on
// observed slot advance (§4.8, §9).
func BuildForwardingSet(snapshot []*Subscriber, forwardAll bool, cache schedule.Cache, consecutiveLeaderSlots uint64, slot uint64) []*Subscriber {
	if forwardAll || cache == nil {
		return snapshot
	}

	leaders := schedule.LeadersInWindow(cache, consecutiveLeaderSlots, slot)
	if len(leaders) == 0 {
		return nil
	}

	out := make([]*Subscriber, 0, len(snapshot))
	for _, s := range snapshot {
		if _, ok := leaders[[32]byte(s.Identity)]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Project builds the wire-ready projection of a StampedBatch (§4.8 step
// 2-3): packets marked Discard are dropped, surviving packets are checked
// against denylist (parsing as a versioned transaction and expanding
// address-lookup-table references only when denylist is non-empty, per
// §4.8's "if the denylist is non-empty" short-circuit), and the survivors
// are chunked into sub-batches of at most subBatchSize packets. The last
// chunk may be smaller; an empty projection yields zero chunks, never an
// empty chunk.
func Project(ctx context.Context, batch *tpu.PacketBatch, denylist *Denylist, cache altcache.Cache, subBatchSize int) [][]relayerpb.Packet {
	if subBatchSize <= 0 {
		subBatchSize = DefaultValidatorPacketBatchSize
	}

	projected := make([]relayerpb.Packet, 0, len(batch.Packets))

	denylistActive := !denylist.Empty()

	for _, p := range batch.Packets {
		if p.Discard {
			continue
		}

		if denylistActive {
			tx, err := txn.ParseTransaction(p.Data)
			if err != nil {
				// Cannot evaluate the denylist against an unparseable
				// payload; treat conservatively as blocked rather than
				// forward something sigverify should already have
				// discarded.
				continue
			}
			if denylist.Blocks(ctx, cache, &tx.Message) {
				continue
			}
		}

		projected = append(projected, relayerpb.Packet{
			Data: p.Data,
			Meta: relayerpb.PacketMeta{
				Addr: p.Addr.Addr().String(),
				Port: p.Addr.Port(),
				Size: uint64(len(p.Data)),
			},
		})
	}

	if len(projected) == 0 {
		return nil
	}

	var chunks [][]relayerpb.Packet
	for i := 0; i < len(projected); i += subBatchSize {
		end := i + subBatchSize
		if end > len(projected) {
			end = len(projected)
		}
		chunks = append(chunks, projected[i:end])
	}
	return chunks
}

// Dispatch sends each sub-batch in chunks to every subscriber in
// forwardingSet, in order (§4.8 step 4, ordering guarantee in §4.8).
// For each chunk it takes a fresh timestamp and tries every subscriber:
//
//   - SendSent increments the forwarded counter for that identity.
//   - SendWouldBlock increments the dropped counter; the subscriber is
//     retried on the next chunk, never evicted for this alone.
//   - SendClosed appends the identity to the returned failed list and
//     stops trying further subscribers *for this chunk* -- this is the
//     observable quirk flagged in §9's open question, preserved here
//     rather than "fixed", per SPEC_FULL's binding decision.
//
// The caller is responsible for evicting the returned failed subscribers
// from the registry after the full pass, per §4.8's "after processing,
// failed-forwards subscribers are dropped via the registry."
func Dispatch(forwardingSet []*Subscriber, chunks [][]relayerpb.Packet, metrics *obs.Metrics) (failed []*Subscriber) {
	seen := make(map[txn.PublicKey]struct{})

	for _, chunk := range chunks {
		now := time.Now()
		resp := &relayerpb.SubscribeResponse{
			Header: relayerpb.Header{TsUnixNano: now.UnixNano()},
			Batch:  &relayerpb.PacketBatch{Packets: chunk},
		}

	SubLoop:
		for _, sub := range forwardingSet {
			switch sub.TrySend(resp) {
			case SendSent:
				if metrics != nil {
					metrics.ValidatorForwarded.WithLabelValues(sub.Identity.String()).Add(float64(len(chunk)))
				}

			case SendWouldBlock:
				if metrics != nil {
					metrics.ValidatorDropped.WithLabelValues(sub.Identity.String()).Add(float64(len(chunk)))
				}

			case SendClosed:
				if _, ok := seen[sub.Identity]; !ok {
					seen[sub.Identity] = struct{}{}
					failed = append(failed, sub)
				}
				break SubLoop
			}
		}
	}

	return failed
}

// ObservePacketLatency records the time between StampedBatch hand-off and
// fan-out (§4.8 step 1) in the packet-latency histogram, if metrics is
// non-nil.
func ObservePacketLatency(metrics *obs.Metrics, stampedAt time.Time) {
	if metrics == nil {
		return
	}
	metrics.PacketLatency.Observe(time.Since(stampedAt).Seconds())
}
