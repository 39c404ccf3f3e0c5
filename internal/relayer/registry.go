// Package relayer implements the fan-out core (§4.6-4.8, C6-C8): the
// subscriber registry, the denylist-filtering fan-out policy, the
// single-threaded event loop that multiplexes batches/subscriptions/ticks,
// and the RPC surface that terminates SubscribePackets/GetTpuConfigs.
package relayer

import (
	"sync"

	"github.com/jito-foundation/relayer/internal/relayerpb"
	"github.com/jito-foundation/relayer/internal/txn"
)

// DefaultSubscriberQueueCapacity is SUBSCRIBER_QUEUE_CAPACITY (§5): the
// bounded capacity of each subscriber's outbound channel.
const DefaultSubscriberQueueCapacity = 50_000

// DefaultRegistryCapacity is the initial map capacity hint named in §5.
const DefaultRegistryCapacity = 1_000

// SendResult is the three-way outcome of a non-blocking send to a
// Subscriber's sink (§9: "sink abstraction exposing {Sent, WouldBlock,
// Closed}; never use an unbounded sink").
type SendResult int

const (
	SendSent SendResult = iota
	SendWouldBlock
	SendClosed
)

// Subscriber is one connected validator's outbound stream (§3): a
// validator identity plus a bounded sink of SubscribeResponse. A
// Subscriber never closes its own sink channel directly -- that would
// race any in-flight TrySend from the event loop's fan-out pass -- it
// instead signals termination via Close/Done, which TrySend consults
// before ever touching the channel.
type Subscriber struct {
	Identity txn.PublicKey

	sink     chan *relayerpb.SubscribeResponse
	done     chan struct{}
	doneOnce sync.Once
}

func newSubscriber(identity txn.PublicKey, capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = DefaultSubscriberQueueCapacity
	}
	return &Subscriber{
		Identity: identity,
		sink:     make(chan *relayerpb.SubscribeResponse, capacity),
		done:     make(chan struct{}),
	}
}

// Recv returns the channel the RPC handler reads from to forward
// responses onto the real gRPC stream.
func (s *Subscriber) Recv() <-chan *relayerpb.SubscribeResponse {
	return s.sink
}

// Done returns a channel closed once Close has been called: the RPC
// handler's stream-forwarding loop selects on this to know when to end
// the stream (duplicate-subscribe replacement, or the handler itself
// detected a dead client and called Close to mark itself for eviction).
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close marks the subscriber closed. Safe to call more than once or
// concurrently.
func (s *Subscriber) Close() {
	s.doneOnce.Do(func() { close(s.done) })
}

// TrySend attempts a non-blocking send to the subscriber's sink,
// returning SendClosed without touching the channel if Close has already
// been called.
func (s *Subscriber) TrySend(resp *relayerpb.SubscribeResponse) SendResult {
	select {
	case <-s.done:
		return SendClosed
	default:
	}

	select {
	case s.sink <- resp:
		return SendSent
	default:
		return SendWouldBlock
	}
}

// Registry is the concurrent map from validator identity to Subscriber
// (C7, §3/§4.7). Many writers (RPC handlers inserting, the event loop
// removing); readers take a point-in-time Snapshot and operate lock-free
// over it for the duration of a fan-out or heartbeat pass (§5: "no lock
// held across any I/O or try_send").
type Registry struct {
	mu   sync.RWMutex
	subs map[txn.PublicKey]*Subscriber
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	subs := make(map[txn.PublicKey]*Subscriber, DefaultRegistryCapacity)
	return &Registry{subs: subs}
}

// Insert admits a new subscription (§4.7). If identity is already present
// (Occupied), the prior Subscriber's Close is called -- ending its stream
// with an end-of-stream to the old client -- and duplicate reports true.
// If identity was Vacant, duplicate is false.
func (r *Registry) Insert(identity txn.PublicKey, capacity int) (sub *Subscriber, duplicate bool) {
	sub = newSubscriber(identity, capacity)

	r.mu.Lock()
	old, exists := r.subs[identity]
	r.subs[identity] = sub
	r.mu.Unlock()

	if exists {
		old.Close()
	}

	return sub, exists
}

// Snapshot returns a point-in-time copy of all current subscribers,
// suitable for iterating without holding the registry lock (§5).
func (r *Registry) Snapshot() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// Len reports the current number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// DropMany removes every subscriber in identities from the registry under
// a single write-lock section (§4.6: "drop-marked subscribers are removed
// from the registry under a single write-lock section"), closing each
// one's sink to release the associated outbound stream. A subscriber
// whose map slot has already been replaced by a newer subscription (same
// identity, different Subscriber value) is left alone: the newer
// subscription owns that slot now. Returns the number actually removed.
func (r *Registry) DropMany(subs []*Subscriber) int {
	if len(subs) == 0 {
		return 0
	}

	r.mu.Lock()
	n := 0
	for _, s := range subs {
		if cur, ok := r.subs[s.Identity]; ok && cur == s {
			delete(r.subs, s.Identity)
			n++
		}
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}

	return n
}
