// Package tpu implements the Transaction Processing Unit pipeline (§4.1-4.5):
// QUIC ingest, per-peer/per-IP admission, datagram coalescing, batched
// signature verification, and the bounded hand-off buffer into the relayer
// event loop.
package tpu

import (
	"net/netip"
	"time"
)

// Packet is a fixed-capacity ingest unit: the raw bytes of one signed
// transaction plus the metadata recorded at arrival. Packets are never
// copied on the hot path after ingest; they are shared by reference between
// the fetch, sigverify, and fan-out stages.
type Packet struct {
	Data []byte

	// Addr is the source address the packet arrived from.
	Addr netip.AddrPort

	// ArrivedAt is the time the packet was received off the wire.
	ArrivedAt time.Time

	// Discard marks the packet as invalid (failed signature verification).
	// Downstream stages filter discards out rather than removing them from
	// the batch, per §4.4.
	Discard bool
}

// PacketBatch is an ordered sequence of Packet produced as a unit by one
// ingest connection's coalescing window (§3).
type PacketBatch struct {
	Packets []Packet
}

// StampedBatch pairs a PacketBatch with the instant it was handed off from
// the sigverify stage to the fan-out stage (§3), used for end-to-end
// latency accounting in the heartbeat/metrics ticks.
type StampedBatch struct {
	Batch   PacketBatch
	StampAt time.Time
}
