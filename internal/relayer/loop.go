package relayer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jito-foundation/relayer/internal/altcache"
	"github.com/jito-foundation/relayer/internal/chainrpc"
	"github.com/jito-foundation/relayer/internal/health"
	"github.com/jito-foundation/relayer/internal/logging"
	"github.com/jito-foundation/relayer/internal/obs"
	"github.com/jito-foundation/relayer/internal/relayerpb"
	"github.com/jito-foundation/relayer/internal/schedule"
	"github.com/jito-foundation/relayer/internal/shutdown"
	"github.com/jito-foundation/relayer/internal/tpu"
	"github.com/jito-foundation/relayer/internal/txn"
)

// Default tick intervals and queue capacities named in §4.6/§5.
const (
	DefaultHeartbeatInterval = 500 * time.Millisecond
	DefaultMetricsInterval   = 10 * time.Second
)

// ErrSubscriptionQueueFull is returned by Subscribe when the bounded
// subscription-insert channel is saturated (§4.7): the RPC-side send
// fails with an internal error to the caller rather than blocking the
// event loop's select.
var ErrSubscriptionQueueFull = fmt.Errorf("relayer: subscription queue full")

// Config bounds the relayer event loop (C6).
type Config struct {
	HighestSlot *atomic.Uint64

	Health      health.Gate
	ScheduleCache schedule.Cache
	Denylist    *DenylistSnapshot
	AltCache    altcache.Cache
	Metrics     *obs.Metrics
	Logger      *logging.Logger

	ForwardAll               bool
	ConsecutiveLeaderSlots   uint64
	ValidatorPacketBatchSize int

	HeartbeatInterval time.Duration
	MetricsInterval   time.Duration

	SubscriptionQueueCapacity int
	SubscriberQueueCapacity   int

	// DelayBuffer, if set, is sampled each loop iteration to compute the
	// delay_packet_receiver_max_len high-water-mark metric (supplemented
	// from relayer.rs, see SPEC_FULL.md).
	DelayBuffer *tpu.DelayBuffer
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = DefaultMetricsInterval
	}
	if c.ValidatorPacketBatchSize <= 0 {
		c.ValidatorPacketBatchSize = DefaultValidatorPacketBatchSize
	}
	if c.SubscriptionQueueCapacity <= 0 {
		c.SubscriptionQueueCapacity = chainrpc.SlotQueueCapacity
	}
	if c.SubscriberQueueCapacity <= 0 {
		c.SubscriberQueueCapacity = DefaultSubscriberQueueCapacity
	}
	if c.Logger == nil {
		c.Logger = logging.NoOp()
	}
	return c
}

type subscriptionRequest struct {
	identity txn.PublicKey
	resp     chan *Subscriber
}

// Loop is the single-threaded relayer event loop (C6): it owns the
// Registry and the current ForwardingSet, and is the only goroutine that
// ever mutates either.
type Loop struct {
	cfg      Config
	registry *Registry
	exit     *shutdown.Switch

	subscriptionCh chan subscriptionRequest

	heartbeatCount uint64
	forwardingSet  []*Subscriber
	lastSlot       uint64
	haveSlot       bool

	subscriptionMaxLen int
	delayMaxLen        int
}

// NewLoop constructs a Loop. registry must be the same Registry the RPC
// layer reads Len()/Snapshot() from, if it needs to.
func NewLoop(cfg Config, registry *Registry, exit *shutdown.Switch) *Loop {
	cfg = cfg.withDefaults()
	return &Loop{
		cfg:            cfg,
		registry:       registry,
		exit:           exit,
		subscriptionCh: make(chan subscriptionRequest, cfg.SubscriptionQueueCapacity),
	}
}

// Registry exposes the loop's subscriber registry for read-only external
// use (e.g. a metrics scrape or admin endpoint).
func (l *Loop) Registry() *Registry {
	return l.registry
}

// Subscribe enqueues a new subscription request (§4.7) and waits for the
// loop to process it, returning the admitted Subscriber. If the
// subscription-insert channel is full, it fails immediately with
// ErrSubscriptionQueueFull rather than blocking -- the RPC layer turns
// this into an Internal status (§4.7, §6).
func (l *Loop) Subscribe(ctx context.Context, identity txn.PublicKey) (*Subscriber, error) {
	req := subscriptionRequest{identity: identity, resp: make(chan *Subscriber, 1)}

	select {
	case l.subscriptionCh <- req:
	default:
		return nil, ErrSubscriptionQueueFull
	}

	select {
	case sub := <-req.resp:
		return sub, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.exit.Done():
		return nil, shutdown.ErrShutdown
	}
}

// Run executes the event loop (C6): a single-threaded select over batch
// arrival, subscription arrival, the heartbeat tick, the metrics tick,
// and slot advance, polled once per iteration (§4.6). It returns when the
// exit switch is triggered or batches is closed; both are treated as a
// clean shutdown (§7 Shutdown).
func (l *Loop) Run(ctx context.Context, batches <-chan tpu.StampedBatch) error {
	heartbeatTicker := time.NewTicker(l.cfg.HeartbeatInterval)
	defer heartbeatTicker.Stop()
	metricsTicker := time.NewTicker(l.cfg.MetricsInterval)
	defer metricsTicker.Stop()

	for {
		l.maybeAdvanceSlot()
		l.sampleHighWaterMarks()

		select {
		case <-l.exit.Done():
			return nil

		case <-ctx.Done():
			return ctx.Err()

		case stamped, ok := <-batches:
			if !ok {
				return nil
			}
			l.handleBatch(&stamped)

		case req := <-l.subscriptionCh:
			l.handleSubscription(req)

		case <-heartbeatTicker.C:
			l.handleHeartbeatTick()

		case <-metricsTicker.C:
			l.handleMetricsTick()
		}
	}
}

// maybeAdvanceSlot reads the shared highest-slot atomic (relaxed, tolerant
// of staleness per §5/§9) and recomputes the ForwardingSet only if it has
// advanced since the last observation -- never per batch.
func (l *Loop) maybeAdvanceSlot() {
	if l.cfg.HighestSlot == nil {
		if !l.haveSlot {
			l.haveSlot = true
			l.recomputeForwardingSet()
		}
		return
	}

	slot := l.cfg.HighestSlot.Load()
	if l.haveSlot && slot == l.lastSlot {
		return
	}
	l.lastSlot = slot
	l.haveSlot = true
	l.recomputeForwardingSet()
}

func (l *Loop) sampleHighWaterMarks() {
	if n := len(l.subscriptionCh); n > l.subscriptionMaxLen {
		l.subscriptionMaxLen = n
	}
	if l.cfg.DelayBuffer != nil {
		if n := l.cfg.DelayBuffer.Len(); n > l.delayMaxLen {
			l.delayMaxLen = n
		}
	}
}

func (l *Loop) recomputeForwardingSet() {
	snapshot := l.registry.Snapshot()
	l.forwardingSet = BuildForwardingSet(snapshot, l.cfg.ForwardAll, l.cfg.ScheduleCache, l.cfg.ConsecutiveLeaderSlots, l.lastSlot)
}

func (l *Loop) handleBatch(stamped *tpu.StampedBatch) {
	ObservePacketLatency(l.cfg.Metrics, stamped.StampAt)

	var denylist *Denylist
	if l.cfg.Denylist != nil {
		denylist = l.cfg.Denylist.Load()
	}

	chunks := Project(context.Background(), &stamped.Batch, denylist, l.cfg.AltCache, l.cfg.ValidatorPacketBatchSize)
	if len(chunks) == 0 {
		return
	}

	failed := Dispatch(l.forwardingSet, chunks, l.cfg.Metrics)
	if len(failed) > 0 {
		l.registry.DropMany(failed)
	}
}

func (l *Loop) handleSubscription(req subscriptionRequest) {
	sub, duplicate := l.registry.Insert(req.identity, l.cfg.SubscriberQueueCapacity)
	if duplicate {
		l.cfg.Logger.Info().Str(`pubkey`, req.identity.String()).Log(`relayer_duplicate_subscription`)
	} else {
		l.cfg.Logger.Info().Str(`pubkey`, req.identity.String()).Log(`relayer_new_subscription`)
	}
	req.resp <- sub

	// A new subscriber changes the ForwardingSet's candidate pool even
	// absent a slot advance; refresh it against the current slot so the
	// new subscriber is eligible starting from its very next batch.
	l.recomputeForwardingSet()
}

func (l *Loop) handleHeartbeatTick() {
	start := time.Now()
	defer func() {
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.HeartbeatTickLatency.Observe(time.Since(start).Seconds())
		}
	}()

	snapshot := l.registry.Snapshot()

	if l.cfg.Health != nil && !l.cfg.Health.Healthy() {
		// Unhealthy: mark ALL subscribers for drop (§4.6).
		l.registry.DropMany(snapshot)
		return
	}

	l.heartbeatCount++
	hb := &Heartbeat{Count: l.heartbeatCount}

	var toDrop []*Subscriber
	for _, sub := range snapshot {
		switch sub.TrySend(hb.response()) {
		case SendClosed:
			toDrop = append(toDrop, sub)
		case SendWouldBlock:
			if l.cfg.Metrics != nil {
				l.cfg.Metrics.ValidatorDropped.WithLabelValues(sub.Identity.String()).Inc()
			}
		}
	}

	if len(toDrop) > 0 {
		l.registry.DropMany(toDrop)
	}
}

// handleMetricsTick snapshots registry cardinality and queued item
// counts, publishes a metrics record, and resets the per-interval
// high-water-mark accumulators (§4.6). The emit calls below touch only
// pre-registered Prometheus collectors and never hold the registry lock.
func (l *Loop) handleMetricsTick() {
	if l.cfg.Metrics == nil {
		l.subscriptionMaxLen = 0
		l.delayMaxLen = 0
		return
	}

	l.cfg.Metrics.Subscribers.Set(float64(l.registry.Len()))
	l.cfg.Metrics.SubscriptionReceiverMaxLen.Set(float64(l.subscriptionMaxLen))
	l.cfg.Metrics.DelayPacketReceiverMaxLen.Set(float64(l.delayMaxLen))
	if l.cfg.Health != nil {
		if l.cfg.Health.Healthy() {
			l.cfg.Metrics.HealthStatus.Set(1)
		} else {
			l.cfg.Metrics.HealthStatus.Set(0)
		}
	}

	l.subscriptionMaxLen = 0
	l.delayMaxLen = 0
}

// Heartbeat is the monotonic keep-alive counter (§3, §4.6). The count
// field is only ever incremented by the event loop.
type Heartbeat struct {
	Count uint64
}

func (h *Heartbeat) response() *relayerpb.SubscribeResponse {
	return &relayerpb.SubscribeResponse{
		Header:    relayerpb.Header{TsUnixNano: time.Now().UnixNano()},
		Heartbeat: &relayerpb.Heartbeat{Count: h.Count},
	}
}
