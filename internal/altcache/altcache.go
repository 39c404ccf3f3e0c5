// Package altcache models the address-lookup-table cache: an external
// collaborator (per the purpose-and-scope boundary) that resolves a lookup
// table account into the full account keys it stores, so the fan-out
// policy can expand a versioned transaction's AddressTableLookups before
// consulting the denylist.
package altcache

import (
	"context"
	"sync"

	"github.com/jito-foundation/relayer/internal/txn"
)

// Cache resolves a lookup table's stored account keys, indexed exactly as
// they were written on-chain. Implementations are expected to serve from a
// background-refreshed snapshot; Resolve must not block on network I/O on
// the hot fan-out path.
type Cache interface {
	// Resolve returns the full ordered list of account keys stored in the
	// lookup table identified by tableKey. ok is false if the table is not
	// currently known to the cache.
	Resolve(ctx context.Context, tableKey txn.PublicKey) (keys []txn.PublicKey, ok bool)
}

// Memory is an in-memory Cache, populated out of band (typically by a
// periodic refresh against the chain RPC load balancer) via Put/Remove. It
// is the default Cache used when no external implementation is configured.
type Memory struct {
	mu     sync.RWMutex
	tables map[txn.PublicKey][]txn.PublicKey
}

// NewMemory constructs an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{tables: make(map[txn.PublicKey][]txn.PublicKey)}
}

func (m *Memory) Resolve(_ context.Context, tableKey txn.PublicKey) ([]txn.PublicKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys, ok := m.tables[tableKey]
	return keys, ok
}

// Put replaces the stored account keys for a lookup table.
func (m *Memory) Put(tableKey txn.PublicKey, keys []txn.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[tableKey] = keys
}

// Remove drops a lookup table from the cache, e.g. once its account is
// closed on-chain.
func (m *Memory) Remove(tableKey txn.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, tableKey)
}

// ExpandLookups resolves msg.AddressTableLookups against cache, returning
// the additional writable and readonly account keys they contribute. A
// lookup table that cannot currently be resolved, or an index past the end
// of a resolved table, is skipped rather than treated as an error: the
// denylist check that consumes this is a best-effort safety net, not a
// consensus-critical path, and a stale/missing table must never block
// forwarding.
func ExpandLookups(ctx context.Context, cache Cache, msg *txn.Message) (writable, readonly []txn.PublicKey) {
	if cache == nil {
		return nil, nil
	}
	for _, lookup := range msg.AddressTableLookups {
		keys, ok := cache.Resolve(ctx, lookup.AccountKey)
		if !ok {
			continue
		}
		for _, idx := range lookup.WritableIndexes {
			if int(idx) < len(keys) {
				writable = append(writable, keys[idx])
			}
		}
		for _, idx := range lookup.ReadonlyIndexes {
			if int(idx) < len(keys) {
				readonly = append(readonly, keys[idx])
			}
		}
	}
	return writable, readonly
}
