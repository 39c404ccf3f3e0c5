// Package chainrpc models the chain RPC load-balancer named as an
// external collaborator in §1: the thing the staked-nodes updater (C2)
// polls for the current stake table, and the source of the bounded
// subscription-insert channel capacity constant used by the RPC layer.
package chainrpc

import "context"

// SlotQueueCapacity is the bounded capacity the spec borrows from the load
// balancer's own slot-queue constant for the subscription-insert channel
// (§4.7).
const SlotQueueCapacity = 1_000

// StakeEntry is one validator identity's stake weight as reported by the
// chain RPC.
type StakeEntry struct {
	Identity [32]byte
	Lamports uint64
}

// StakeSource is polled periodically by the staked-nodes updater (C2). A
// real implementation talks to a chain RPC load-balancer; see
// LoadBalancer for the minimal concrete shape that wraps one or more RPC
// endpoints and fails over between them.
type StakeSource interface {
	// GetStakedNodes returns the current stake table. A transient error is
	// expected occasionally (RPC hiccup) and should be logged and retried
	// by the caller, never propagated as fatal.
	GetStakedNodes(ctx context.Context) ([]StakeEntry, error)
}

// LoadBalancer is a minimal StakeSource that round-robins across a fixed
// set of upstream RPC clients, failing over to the next client on error.
// It is a thin concrete adapter rather than a full RPC client: dialing,
// retries-with-backoff, and endpoint health tracking belong to the actual
// chain RPC client supplied by the caller.
type LoadBalancer struct {
	clients []StakeSource
	next    int
}

// NewLoadBalancer constructs a LoadBalancer over the given clients, tried
// in round-robin order starting from an arbitrary client each call.
func NewLoadBalancer(clients ...StakeSource) *LoadBalancer {
	return &LoadBalancer{clients: clients}
}

// ErrNoClients is returned by GetStakedNodes when the LoadBalancer has no
// configured clients.
var ErrNoClients = errNoClients{}

type errNoClients struct{}

func (errNoClients) Error() string { return "chainrpc: no clients configured" }

func (l *LoadBalancer) GetStakedNodes(ctx context.Context) ([]StakeEntry, error) {
	n := len(l.clients)
	if n == 0 {
		return nil, ErrNoClients
	}
	var lastErr error
	for i := 0; i < n; i++ {
		idx := (l.next + i) % n
		entries, err := l.clients[idx].GetStakedNodes(ctx)
		if err == nil {
			l.next = (idx + 1) % n
			return entries, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
