package tpu

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/jito-foundation/relayer/internal/admission"
	"github.com/jito-foundation/relayer/internal/coalesce"
	"github.com/jito-foundation/relayer/internal/logging"
	"github.com/jito-foundation/relayer/internal/obs"
)

// Constants named directly in §4.1/§6.
const (
	// DefaultMaxStreamsPerMs bounds how many new uni-streams a single QUIC
	// connection may open per millisecond.
	DefaultMaxStreamsPerMs = 128

	// DefaultWaitForChunkTimeout closes a stream that has been idle (no new
	// bytes) for longer than this.
	DefaultWaitForChunkTimeout = 10 * time.Second

	// maxPacketSize bounds a single transaction packet, matching the
	// chain's own maximum transaction wire size plus a safety margin.
	maxPacketSize = 1280
)

// ServerKind distinguishes the direct and forwards QUIC ingest pools (§4.1):
// identical protocol, different admission routing.
type ServerKind int

const (
	DirectServer ServerKind = iota
	ForwardsServer
)

func (k ServerKind) poolKind() admission.PoolKind {
	if k == ForwardsServer {
		return admission.ForwardsPool
	}
	return admission.DirectPool
}

// ServerConfig configures one QUIC ingest server (C1), spawned per UDP
// socket by Spawn.
type ServerConfig struct {
	Kind ServerKind

	// TLSConfig must present the server's own certificate (server_identity)
	// and request (but not strictly require, since public QUIC clients are
	// permissionless) the client's certificate, whose public key becomes
	// the peer identity consulted against StakedNodes.
	TLSConfig *tls.Config

	// QUICConfig is passed through to quic.Listen; nil uses quic-go's
	// defaults.
	QUICConfig *quic.Config

	Admission   *admission.Controller
	StakedNodes *StakedNodesSnapshot

	// Output receives one PacketBatch per coalescing window, per
	// connection (§3, §4.1).
	Output chan<- PacketBatch

	Coalesce coalesce.Config

	MaxStreamsPerMs     int
	WaitForChunkTimeout time.Duration

	Logger *logging.Logger

	// Metrics, if set, receives admission accept/reject counters (§4.1,
	// §7 QuotaExceeded: "silent drop + counter increment"). Nil is valid:
	// every increment site tolerates it.
	Metrics *obs.Metrics
}

func (c *ServerConfig) withDefaults() ServerConfig {
	out := *c
	if out.MaxStreamsPerMs <= 0 {
		out.MaxStreamsPerMs = DefaultMaxStreamsPerMs
	}
	if out.WaitForChunkTimeout <= 0 {
		out.WaitForChunkTimeout = DefaultWaitForChunkTimeout
	}
	if out.Logger == nil {
		out.Logger = logging.NoOp()
	}
	return out
}

// Spawn starts a QUIC server task on socket (§4.1's "spawn(socket,
// server_identity, output, staked_nodes, limits)"). It blocks, accepting
// connections until ctx is canceled or the socket errors; a socket-level
// error terminates only this server (§7 TransientIO/Fatal boundary is the
// caller's: Spawn returns the error so the caller can decide whether it is
// fatal for the process or just this listener).
func Spawn(ctx context.Context, socket net.PacketConn, cfg ServerConfig) error {
	cfg = cfg.withDefaults()

	ln, err := quic.Listen(socket, cfg.TLSConfig, cfg.QUICConfig)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go handleConnection(ctx, conn, &cfg)
	}
}

func handleConnection(ctx context.Context, conn quic.Connection, cfg *ServerConfig) {
	log := cfg.Logger

	poolLabel := "direct"
	if cfg.Kind == ForwardsServer {
		poolLabel = "forwards"
	}

	addrPort, _ := netip.ParseAddrPort(conn.RemoteAddr().String())
	peer := peerIdentity(conn)

	var staked bool
	var nodeStake, totalStake uint64
	if peer != nil {
		snapshot := cfg.StakedNodes.Load()
		nodeStake, staked = snapshot.Weight(publicKeyArray(peer))
		totalStake = snapshot.Total()
	}
	// Forwarded traffic must originate from staked nodes (§4.1): refuse the
	// connection outright rather than admitting it unstaked into a pool
	// that has zero unstaked capacity anyway.
	if cfg.Kind == ForwardsServer && !staked {
		incRejected(cfg.Metrics, poolLabel, "forwards_requires_staked")
		_ = conn.CloseWithError(0, "forwards pool requires a staked identity")
		return
	}

	lease, err := cfg.Admission.Admit(ctx, addrPort.Addr(), peer, staked, cfg.Kind.poolKind())
	if err != nil {
		incRejected(cfg.Metrics, poolLabel, rejectionReason(err))
		log.Debug().Err(err).Log("connection rejected by admission controller")
		_ = conn.CloseWithError(0, "admission rejected")
		return
	}
	defer lease.Release()

	classLabel := "unstaked"
	if staked {
		classLabel = "staked"
	}
	incAccepted(cfg.Metrics, poolLabel, classLabel)

	coalescer := coalesce.NewCoalescer[Packet](&cfg.Coalesce, func(ctx context.Context, items []Packet) error {
		select {
		case cfg.Output <- PacketBatch{Packets: items}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	defer coalescer.Close()

	// Staked peers get priority stream bandwidth proportional to their
	// stake share (§4.1); unstaked peers and peers with no recorded stake
	// keep the configured base budget.
	maxStreamsPerMs := cfg.MaxStreamsPerMs
	if staked {
		maxStreamsPerMs = admission.StreamBudget(cfg.MaxStreamsPerMs, nodeStake, totalStake)
	}
	limiter := newStreamRateLimiter(maxStreamsPerMs)

	for {
		if err := limiter.wait(ctx); err != nil {
			return
		}

		stream, err := conn.AcceptUniStream(ctx)
		if err != nil {
			return
		}
		go handleStream(ctx, stream, addrPort, coalescer, cfg.WaitForChunkTimeout, log)
	}
}

func handleStream(ctx context.Context, stream quic.ReceiveStream, addr netip.AddrPort, coalescer *coalesce.Coalescer[Packet], chunkTimeout time.Duration, log *logging.Logger) {
	var data []byte
	chunk := make([]byte, maxPacketSize)
	for len(data) < maxPacketSize {
		// The deadline is renewed before every read, so only a stream that
		// stays idle for chunkTimeout is cut off.
		_ = stream.SetReadDeadline(time.Now().Add(chunkTimeout))
		n, err := stream.Read(chunk[:maxPacketSize-len(data)])
		data = append(data, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Debug().Err(err).Log("stream read failed or timed out")
			return
		}
	}
	if len(data) == 0 {
		return
	}

	packet := Packet{
		Data:      data,
		Addr:      addr,
		ArrivedAt: time.Now(),
	}
	if _, err := coalescer.Submit(ctx, packet); err != nil {
		log.Debug().Err(err).Log("packet dropped: coalescer unavailable")
	}
}

// incRejected and incAccepted tolerate a nil metrics (the admission path
// has no hard dependency on metrics being wired).
func incRejected(metrics *obs.Metrics, pool, reason string) {
	if metrics == nil {
		return
	}
	metrics.ConnectionsRejected.WithLabelValues(pool, reason).Inc()
}

func incAccepted(metrics *obs.Metrics, pool, class string) {
	if metrics == nil {
		return
	}
	metrics.ConnectionsAccepted.WithLabelValues(pool, class).Inc()
}

// rejectionReason maps an admission.Controller.Admit error to the
// ConnectionsRejected "reason" label (§7 QuotaExceeded).
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, admission.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, admission.ErrTooManyConnections):
		return "too_many_connections"
	default:
		return "other"
	}
}

// peerIdentity extracts the client's ed25519 public key from its presented
// TLS certificate, per §6: "each client presents a certificate whose
// public key IS the client's validator identity." Returns nil if the
// client presented no certificate (unauthenticated/unstaked).
func peerIdentity(conn quic.Connection) ed25519.PublicKey {
	state := conn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	pub, ok := state.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil
	}
	return pub
}

func publicKeyArray(pub ed25519.PublicKey) (out [32]byte) {
	copy(out[:], pub)
	return out
}

// streamRateLimiter enforces DEFAULT_MAX_STREAMS_PER_MS: at most N new
// streams accepted per millisecond for a single connection.
type streamRateLimiter struct {
	perMs int
	until time.Time
	count int
}

func newStreamRateLimiter(perMs int) *streamRateLimiter {
	return &streamRateLimiter{perMs: perMs}
}

// wait blocks, if necessary, until the connection is within its new-stream
// budget for the current millisecond window.
func (l *streamRateLimiter) wait(ctx context.Context) error {
	now := time.Now()
	if now.After(l.until) {
		l.until = now.Add(time.Millisecond)
		l.count = 0
	}
	l.count++
	if l.count <= l.perMs {
		return nil
	}
	select {
	case <-time.After(time.Until(l.until)):
		l.until = time.Now().Add(time.Millisecond)
		l.count = 1
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
