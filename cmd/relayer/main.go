// Command relayer runs the transaction relayer: the TPU ingest pipeline
// (C1-C5) feeding the fan-out core (C6-C8) over a gRPC subscription
// surface. Process lifecycle -- flag parsing, signal-driven shutdown, and
// logger construction -- lives here; everything else lives in internal/.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"

	"github.com/jito-foundation/relayer/internal/admission"
	"github.com/jito-foundation/relayer/internal/altcache"
	"github.com/jito-foundation/relayer/internal/chainrpc"
	"github.com/jito-foundation/relayer/internal/config"
	"github.com/jito-foundation/relayer/internal/health"
	"github.com/jito-foundation/relayer/internal/logging"
	"github.com/jito-foundation/relayer/internal/obs"
	"github.com/jito-foundation/relayer/internal/relayer"
	"github.com/jito-foundation/relayer/internal/relayerpb"
	"github.com/jito-foundation/relayer/internal/schedule"
	"github.com/jito-foundation/relayer/internal/shutdown"
	"github.com/jito-foundation/relayer/internal/tpu"
	"github.com/jito-foundation/relayer/internal/txn"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := config.Config{}
	var (
		tlsCertPath string
		tlsKeyPath  string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "relayer",
		Short: "Runs the transaction relayer data plane and fan-out core",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), &cfg, tlsCertPath, tlsKeyPath, logLevel)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.MaxUnstakedQUICConnections, "max-unstaked-quic-connections", 500, "admission pool size for unstaked QUIC connections")
	flags.IntVar(&cfg.MaxStakedQUICConnections, "max-staked-quic-connections", 2000, "admission pool size for staked QUIC connections")
	flags.IntVar(&cfg.ValidatorPacketBatchSize, "validator-packet-batch-size", relayer.DefaultValidatorPacketBatchSize, "projected sub-batch size sent to each subscriber")
	flags.BoolVar(&cfg.ForwardAll, "forward-all", false, "bypass leader-schedule selection and forward to every connected subscriber")
	flags.StringVar(&cfg.PublicIP, "public-ip", "", "public IP advertised via GetTpuConfigs")
	flags.IntSliceVar(&cfg.TPUQUICPorts, "tpu-quic-ports", nil, "bind ports for the direct QUIC ingest pool")
	flags.IntSliceVar(&cfg.TPUForwardsQUICPorts, "tpu-forwards-quic-ports", nil, "bind ports for the forwards QUIC ingest pool")
	flags.Uint64Var(&cfg.ConsecutiveLeaderSlots, "consecutive-leader-slots", 4, "chain constant K: consecutive slots per leader rotation")
	flags.StringVar(&cfg.RPCBindAddr, "rpc-bind-addr", ":11226", "bind address for the egress gRPC service")
	flags.StringVar(&cfg.MetricsBindAddr, "metrics-bind-addr", ":11227", "bind address for the Prometheus metrics endpoint")
	flags.StringVar(&tlsCertPath, "tls-cert", "", "path to the relayer's own TLS certificate (server identity)")
	flags.StringVar(&tlsKeyPath, "tls-key", "", "path to the relayer's own TLS private key")
	flags.StringVar(&logLevel, "log-level", "info", "minimum log level: trace|debug|info|notice|warning|err|crit|alert|emerg")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, tlsCertPath, tlsKeyPath, logLevel string) error {
	log := logging.New(logging.Config{Writer: os.Stdout, Level: parseLevel(logLevel), LevelSet: true})

	exit := shutdown.New()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		exit.Trigger()
	}()

	healthGate := health.NewAtomicGate()
	healthGate.SetHealthy(true)

	reg := prometheus.NewRegistry()
	metrics := obs.New(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: cfg.MetricsBindAddr, Handler: mux}
		go func() {
			<-exit.Done()
			_ = server.Close()
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Err().Err(err).Log("metrics server exited")
		}
	}()

	scheduleCache := schedule.NewMemory(cfg.ConsecutiveLeaderSlots)
	altCache := altcache.NewMemory()
	denylistSnapshot := relayer.NewDenylistSnapshot()
	denylistSnapshot.Store(relayer.NewDenylist(cfg.OFACAddresses))
	stakedNodes := tpu.NewStakedNodesSnapshot()

	// The chain RPC load balancer has no configured clients here: dialing
	// the actual chain RPC endpoints is outside this repository's scope
	// (§1). Operators wire a real chainrpc.StakeSource in before
	// deployment. Until then every refresh below fails with
	// chainrpc.ErrNoClients, no snapshot is published, and
	// StakedNodesOverrides is not applied either: every peer is treated
	// as unstaked.
	loadBalancer := chainrpc.NewLoadBalancer()
	go tpu.RunStakedNodesUpdater(ctx, stakedNodes, tpu.StakedNodesUpdaterConfig{
		Source:    loadBalancer,
		Overrides: cfg.StakedNodesOverrides,
		Logger:    log,
	})

	registry := relayer.NewRegistry()
	delayBuffer := tpu.NewDelayBuffer(tpu.DefaultDelayBufferCapacity)

	var highestSlot atomic.Uint64

	loop := relayer.NewLoop(relayer.Config{
		HighestSlot:              &highestSlot,
		Health:                   healthGate,
		ScheduleCache:            scheduleCache,
		Denylist:                 denylistSnapshot,
		AltCache:                 altCache,
		Metrics:                  metrics,
		Logger:                   log,
		ForwardAll:               cfg.ForwardAll,
		ConsecutiveLeaderSlots:   cfg.ConsecutiveLeaderSlots,
		ValidatorPacketBatchSize: cfg.ValidatorPacketBatchSize,
		DelayBuffer:              delayBuffer,
	}, registry, exit)

	admissionCfg := admission.Config{
		DirectPoolCapacity:   int64(cfg.MaxStakedQUICConnections + cfg.MaxUnstakedQUICConnections),
		ForwardsPoolCapacity: int64(cfg.MaxStakedQUICConnections),
	}
	admissionController := admission.NewController(
		admissionCfg,
		int64(cfg.MaxStakedQUICConnections), int64(cfg.MaxUnstakedQUICConnections),
		int64(cfg.MaxStakedQUICConnections), admission.DefaultForwardsPoolUnstakedCapacity,
	)

	var tlsConfig *tls.Config
	if tlsCertPath != "" && tlsKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(tlsCertPath, tlsKeyPath)
		if err != nil {
			return fmt.Errorf("loading relayer TLS identity: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequestClientCert,
			NextProtos:   []string{"solana-tpu"},
			MinVersion:   tls.VersionTLS13,
		}
	}

	directOut := make(chan tpu.PacketBatch, tpu.DefaultDelayBufferCapacity)
	forwardsOut := make(chan tpu.PacketBatch, tpu.DefaultDelayBufferCapacity)

	if tlsConfig != nil {
		for _, port := range cfg.TPUQUICPorts {
			if err := spawnQUICServer(ctx, "tpu", port, tpu.DirectServer, tlsConfig, admissionController, stakedNodes, directOut, metrics, log); err != nil {
				return err
			}
		}
		for _, port := range cfg.TPUForwardsQUICPorts {
			if err := spawnQUICServer(ctx, "tpu-forwards", port, tpu.ForwardsServer, tlsConfig, admissionController, stakedNodes, forwardsOut, metrics, log); err != nil {
				return err
			}
		}
	} else {
		log.Warning().Log("no TLS identity configured: QUIC ingest servers not started")
	}

	go tpu.RunFetchStage(ctx, forwardsOut, directOut, log)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-directOut:
				if !ok {
					return
				}
				tpu.VerifyBatch(&batch, log)
				if err := delayBuffer.Enqueue(ctx, batch); err != nil {
					return
				}
			}
		}
	}()

	var serverOpts []grpc.ServerOption
	serverOpts = append(serverOpts, grpc.StreamInterceptor(identityStreamInterceptor))
	if tlsConfig != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	grpcServer := grpc.NewServer(serverOpts...)
	grpcServer.RegisterService(&relayerpb.ServiceDesc, relayer.NewService(relayer.ServiceConfig{
		Loop:             loop,
		Health:           healthGate,
		PublicIP:         cfg.PublicIP,
		TpuPorts:         toInt32Slice(cfg.TPUQUICPorts),
		TpuForwardsPorts: toInt32Slice(cfg.TPUForwardsQUICPorts),
	}))

	lis, err := net.Listen("tcp", cfg.RPCBindAddr)
	if err != nil {
		return fmt.Errorf("binding rpc listener: %w", err)
	}
	go func() {
		<-exit.Done()
		grpcServer.GracefulStop()
	}()
	go func() {
		log.Info().Str(`addr`, cfg.RPCBindAddr).Log("relayer rpc server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Err().Err(err).Log("rpc server exited")
		}
	}()

	if err := loop.Run(ctx, delayBuffer.Recv()); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// identityStreamInterceptor attaches the authenticated caller's validator
// identity, extracted from the client certificate presented over TLS, to
// the stream's context (the seam relayer.ContextWithIdentity documents as
// belonging to out-of-scope gRPC plumbing, here given a concrete home).
func identityStreamInterceptor(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	p, ok := peer.FromContext(ss.Context())
	if !ok {
		return handler(srv, ss)
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok || len(tlsInfo.State.PeerCertificates) == 0 {
		return handler(srv, ss)
	}
	pub, ok := tlsInfo.State.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return handler(srv, ss)
	}

	var identity txn.PublicKey
	copy(identity[:], pub)
	return handler(srv, &identityServerStream{ServerStream: ss, ctx: relayer.ContextWithIdentity(ss.Context(), identity)})
}

type identityServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityServerStream) Context() context.Context { return s.ctx }

func spawnQUICServer(ctx context.Context, name string, port int, kind tpu.ServerKind, tlsConfig *tls.Config, admissionController *admission.Controller, stakedNodes *tpu.StakedNodesSnapshot, out chan<- tpu.PacketBatch, metrics *obs.Metrics, log *logging.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	socket, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("binding %s QUIC socket %s: %w", name, addr, err)
	}
	go func() {
		err := tpu.Spawn(ctx, socket, tpu.ServerConfig{
			Kind:        kind,
			TLSConfig:   tlsConfig,
			Admission:   admissionController,
			StakedNodes: stakedNodes,
			Output:      out,
			Metrics:     metrics,
			Logger:      log,
		})
		if err != nil && ctx.Err() == nil {
			log.Err().Err(err).Str(`server`, name).Log("quic server exited")
		}
	}()
	return nil
}

func toInt32Slice(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func parseLevel(s string) logiface.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "notice":
		return logiface.LevelNotice
	case "warning", "warn":
		return logiface.LevelWarning
	case "err", "error":
		return logiface.LevelError
	case "crit", "critical":
		return logiface.LevelCritical
	case "alert":
		return logiface.LevelAlert
	case "emerg", "emergency":
		return logiface.LevelEmergency
	case "disabled", "off", "none":
		return logiface.LevelDisabled
	default:
		return logiface.LevelInformational
	}
}
