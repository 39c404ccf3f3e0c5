package relayer

import (
	"context"
	"sync/atomic"

	"github.com/jito-foundation/relayer/internal/altcache"
	"github.com/jito-foundation/relayer/internal/txn"
)

// Denylist is the OFAC-style set of blocked account identities (§3, §6
// ofac_addresses). A transaction is blocked if any of its signer,
// writable, readable, or lookup-expanded accounts appears in the set.
// The zero value is an empty, always-permissive Denylist.
type Denylist struct {
	blocked map[txn.PublicKey]struct{}
}

// NewDenylist builds a Denylist from the given account identities. An
// empty or nil slice produces a Denylist that blocks nothing.
func NewDenylist(accounts []txn.PublicKey) *Denylist {
	if len(accounts) == 0 {
		return &Denylist{}
	}
	blocked := make(map[txn.PublicKey]struct{}, len(accounts))
	for _, a := range accounts {
		blocked[a] = struct{}{}
	}
	return &Denylist{blocked: blocked}
}

// Empty reports whether the Denylist blocks nothing, letting callers skip
// the transaction parse entirely per §4.8 ("if the denylist is
// non-empty, attempt to parse...").
func (d *Denylist) Empty() bool {
	return d == nil || len(d.blocked) == 0
}

func (d *Denylist) contains(key txn.PublicKey) bool {
	if d == nil {
		return false
	}
	_, ok := d.blocked[key]
	return ok
}

// Blocks reports whether msg touches a denylisted account, directly or
// via an address-lookup-table expansion resolved against cache.
func (d *Denylist) Blocks(ctx context.Context, cache altcache.Cache, msg *txn.Message) bool {
	if d.Empty() {
		return false
	}

	for _, k := range msg.SignerKeys() {
		if d.contains(k) {
			return true
		}
	}
	for _, k := range msg.WritableKeys() {
		if d.contains(k) {
			return true
		}
	}
	for _, k := range msg.ReadonlyKeys() {
		if d.contains(k) {
			return true
		}
	}

	if len(msg.AddressTableLookups) == 0 {
		return false
	}
	writable, readonly := altcache.ExpandLookups(ctx, cache, msg)
	for _, k := range writable {
		if d.contains(k) {
			return true
		}
	}
	for _, k := range readonly {
		if d.contains(k) {
			return true
		}
	}

	return false
}

// DenylistSnapshot is a single-writer, many-reader atomic cell holding the
// current Denylist, matching the "immutable snapshots published via
// atomic pointer swap" shape described for the denylist in §5.
type DenylistSnapshot struct {
	v atomic.Pointer[Denylist]
}

// NewDenylistSnapshot returns a snapshot cell initialized to empty.
func NewDenylistSnapshot() *DenylistSnapshot {
	s := &DenylistSnapshot{}
	s.v.Store(&Denylist{})
	return s
}

// Load returns the current Denylist. Never nil.
func (s *DenylistSnapshot) Load() *Denylist {
	if v := s.v.Load(); v != nil {
		return v
	}
	return &Denylist{}
}

// Store atomically publishes a new Denylist.
func (s *DenylistSnapshot) Store(d *Denylist) {
	if d == nil {
		d = &Denylist{}
	}
	s.v.Store(d)
}
