// Package admission implements connection- and stream-admission control for
// the QUIC ingest servers: the per-IP-per-minute connection rate limit, the
// per-IP and per-peer concurrent connection caps, and the staked/unstaked
// connection pools that gate how many simultaneous QUIC connections each
// class of peer may hold open.
package admission

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/big"
	"net/netip"
	"sync"
	"time"

	"github.com/joeycumines/floater"
	"golang.org/x/sync/semaphore"
)

// Defaults mirror the constants named in the QUIC ingest design: a peer may
// open at most MaxConnectionsPerIPPerMinute new connections from a given
// source IP in any rolling minute, hold at most MaxConnectionsPerIP of them
// concurrently, and a single staked identity may hold at most
// MaxConnectionsPerPeer concurrently across all of its source IPs.
const (
	DefaultMaxConnectionsPerIPPerMinute = 64
	DefaultMaxConnectionsPerIP          = 8
	DefaultMaxConnectionsPerPeer        = 8

	// DefaultForwardsPoolUnstakedCapacity is always zero: unstaked peers are
	// never admitted to the forwards pool, only the direct pool. This is
	// carried over verbatim from the forwarding stage of the original
	// implementation rather than left as an unexplained magic number.
	DefaultForwardsPoolUnstakedCapacity = 0
)

// Config bounds the admission controller. Zero values fall back to the
// Default* constants above.
type Config struct {
	MaxConnectionsPerIPPerMinute int
	MaxConnectionsPerIP          int
	MaxConnectionsPerPeer        int

	// DirectPoolCapacity and ForwardsPoolCapacity record the total size of
	// each pool. The Controller does not read them: each pool's staked and
	// unstaked semaphores are sized only by the capacities passed to
	// NewController.
	DirectPoolCapacity   int64
	ForwardsPoolCapacity int64
}

func (c Config) withDefaults() Config {
	if c.MaxConnectionsPerIPPerMinute <= 0 {
		c.MaxConnectionsPerIPPerMinute = DefaultMaxConnectionsPerIPPerMinute
	}
	if c.MaxConnectionsPerIP <= 0 {
		c.MaxConnectionsPerIP = DefaultMaxConnectionsPerIP
	}
	if c.MaxConnectionsPerPeer <= 0 {
		c.MaxConnectionsPerPeer = DefaultMaxConnectionsPerPeer
	}
	return c
}

// Controller is the admission gate shared by the direct and forwards QUIC
// ingest pools. It is safe for concurrent use.
type Controller struct {
	cfg Config

	perMinute *rateLimiter

	mu         sync.Mutex
	perIP      map[netip.Addr]int
	perPeer    map[string]int // keyed by the peer's verifying public key, hex-encoded

	direct   pool
	forwards pool
}

// pool is a bounded admission pool split between a staked and an unstaked
// semaphore, letting staked connections proceed even when the unstaked
// portion of the pool is saturated.
type pool struct {
	staked   *semaphore.Weighted
	unstaked *semaphore.Weighted
}

func newPool(stakedCapacity, unstakedCapacity int64) pool {
	if stakedCapacity < 0 {
		stakedCapacity = 0
	}
	if unstakedCapacity < 0 {
		unstakedCapacity = 0
	}
	return pool{
		staked:   semaphore.NewWeighted(stakedCapacity),
		unstaked: semaphore.NewWeighted(unstakedCapacity),
	}
}

// NewController constructs an admission Controller. directUnstakedCapacity
// and forwardsUnstakedCapacity size the unstaked portion of each pool;
// passing DefaultForwardsPoolUnstakedCapacity for the latter reproduces the
// "forwards pool never admits unstaked peers" rule.
func NewController(cfg Config, directStakedCapacity, directUnstakedCapacity, forwardsStakedCapacity, forwardsUnstakedCapacity int64) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:       cfg,
		perMinute: newRateLimiter(map[time.Duration]int{time.Minute: cfg.MaxConnectionsPerIPPerMinute}),
		perIP:     make(map[netip.Addr]int),
		perPeer:   make(map[string]int),
		direct:    newPool(directStakedCapacity, directUnstakedCapacity),
		forwards:  newPool(forwardsStakedCapacity, forwardsUnstakedCapacity),
	}
}

// PoolKind selects which QUIC ingest pool a connection is being admitted
// into.
type PoolKind int

const (
	DirectPool PoolKind = iota
	ForwardsPool
)

// ErrRateLimited is returned by Admit when the source IP has exceeded
// MaxConnectionsPerIPPerMinute.
var ErrRateLimited = fmt.Errorf("admission: rate limited")

// ErrTooManyConnections is returned by Admit when the per-IP or per-peer
// concurrent connection cap has already been reached.
var ErrTooManyConnections = fmt.Errorf("admission: too many concurrent connections")

// Lease represents one admitted connection. Release must be called exactly
// once, typically in a defer alongside the QUIC connection's own close.
type Lease struct {
	c      *Controller
	ip     netip.Addr
	peer   string
	kind   PoolKind
	staked bool
}

// Admit attempts to admit a new QUIC connection from ip, identified by the
// peer's ed25519 public key (nil if unknown/unauthenticated, which is
// treated as unstaked). It enforces, in order: the per-IP connections-per-
// minute rate, the per-IP concurrent cap, the per-peer concurrent cap, and
// finally blocks on the staked or unstaked pool semaphore depending on
// staked.
func (c *Controller) Admit(ctx context.Context, ip netip.Addr, peer ed25519.PublicKey, staked bool, kind PoolKind) (*Lease, error) {
	if _, ok := c.perMinute.Allow(ip); !ok {
		return nil, ErrRateLimited
	}

	peerKey := fmt.Sprintf("%x", []byte(peer))

	c.mu.Lock()
	if c.perIP[ip] >= c.cfg.MaxConnectionsPerIP {
		c.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	if peerKey != "" && c.perPeer[peerKey] >= c.cfg.MaxConnectionsPerPeer {
		c.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	c.perIP[ip]++
	c.perPeer[peerKey]++
	c.mu.Unlock()

	p := c.direct
	if kind == ForwardsPool {
		p = c.forwards
	}
	sem := p.unstaked
	if staked {
		sem = p.staked
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		c.release(ip, peerKey)
		return nil, err
	}

	return &Lease{c: c, ip: ip, peer: peerKey, kind: kind, staked: staked}, nil
}

func (c *Controller) release(ip netip.Addr, peerKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.perIP[ip] - 1; n <= 0 {
		delete(c.perIP, ip)
	} else {
		c.perIP[ip] = n
	}
	if n := c.perPeer[peerKey] - 1; n <= 0 {
		delete(c.perPeer, peerKey)
	} else {
		c.perPeer[peerKey] = n
	}
}

// Release returns the connection's slot to its pool and decrements the
// per-IP/per-peer concurrent counters. Safe to call at most once.
func (l *Lease) Release() {
	p := l.c.direct
	if l.kind == ForwardsPool {
		p = l.c.forwards
	}
	sem := p.unstaked
	if l.staked {
		sem = p.staked
	}
	sem.Release(1)
	l.c.release(l.ip, l.peer)
}

// StakeShare computes a node's proportional share of total network stake as
// an exact rational, used to size how much of the staked connection pool
// and stream budget a given staked peer is entitled to. It is expressed via
// floater.RatConv so the value can be logged or serialized losslessly
// instead of being rounded to a float64 prematurely.
func StakeShare(nodeStakeLamports, totalStakeLamports uint64) *floater.RatConv {
	r := new(big.Rat)
	if totalStakeLamports != 0 {
		r.SetFrac(new(big.Int).SetUint64(nodeStakeLamports), new(big.Int).SetUint64(totalStakeLamports))
	}
	return (*floater.RatConv)(r)
}

// DefaultStakedStreamPriorityMultiplier bounds how many multiples of the
// unstaked per-connection stream budget a staked peer holding the entire
// network's stake may be granted. A peer holding half the network's stake
// is granted roughly half that bonus, and so on, linearly: §4.1's "staked
// peers additionally receive priority stream bandwidth proportional to
// their weight."
const DefaultStakedStreamPriorityMultiplier = 16

// StreamBudget scales base -- the unstaked per-connection new-streams-per-
// millisecond budget -- by a staked peer's StakeShare, up to
// DefaultStakedStreamPriorityMultiplier times base for a peer holding all
// of the network's stake. Unstaked callers, or a peer with zero recorded
// stake, should pass nodeStakeLamports=0 and get base back unchanged.
func StreamBudget(base int, nodeStakeLamports, totalStakeLamports uint64) int {
	if base <= 0 {
		base = 1
	}

	share := StakeShare(nodeStakeLamports, totalStakeLamports).Value()
	if share.Sign() <= 0 {
		return base
	}

	f, _ := share.Float64()
	bonus := f * float64(base) * float64(DefaultStakedStreamPriorityMultiplier-1)
	return base + int(bonus)
}
