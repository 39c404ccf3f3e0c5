package relayer

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jito-foundation/relayer/internal/health"
	"github.com/jito-foundation/relayer/internal/relayerpb"
	"github.com/jito-foundation/relayer/internal/txn"
)

// tpuAdvertisedPortOffset is added to the configured bind port before it
// is advertised via GetTpuConfigs, so the advertised port is bind_port - 6.
// The origin of this offset is
// not documented upstream; it is preserved here as a named constant to
// maintain wire compatibility (§6, §9 open question, binding decision in
// SPEC_FULL.md).
const tpuAdvertisedPortOffset = -6

type identityContextKey struct{}

// ContextWithIdentity attaches the caller's authenticated validator
// identity to ctx. This is the seam the out-of-scope gRPC plumbing named
// in §1 (the layer that terminates TLS and carries the authenticated
// caller identity into request metadata) is expected to populate, via a
// server interceptor, before a handler runs.
func ContextWithIdentity(ctx context.Context, identity txn.PublicKey) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity attached by
// ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (txn.PublicKey, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(txn.PublicKey)
	return identity, ok
}

// ServiceConfig configures the egress RPC surface (§6).
type ServiceConfig struct {
	Loop   *Loop
	Health health.Gate

	PublicIP             string
	TpuPorts             []int32
	TpuForwardsPorts     []int32
}

// Service implements relayerpb.RelayerServer: GetTpuConfigs and
// SubscribePackets (§6).
type Service struct {
	cfg       ServiceConfig
	portIndex atomic.Uint64
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{cfg: cfg}
}

var _ relayerpb.RelayerServer = (*Service)(nil)

// errUnhealthy is returned by every RPC method when the health gate
// reports unhealthy (§6 "Health gate").
func errUnhealthy() error {
	return status.Error(codes.Internal, "relayer is unhealthy")
}

func (s *Service) healthy() bool {
	return s.cfg.Health == nil || s.cfg.Health.Healthy()
}

// GetTpuConfigs returns the advertised direct and forwards TPU sockets,
// round-robining over the configured port vectors on each call (§6).
func (s *Service) GetTpuConfigs(ctx context.Context, _ *relayerpb.GetTpuConfigsRequest) (*relayerpb.GetTpuConfigsResponse, error) {
	if !s.healthy() {
		return nil, errUnhealthy()
	}
	if len(s.cfg.TpuPorts) == 0 || len(s.cfg.TpuForwardsPorts) == 0 {
		return nil, status.Error(codes.Internal, "relayer has no configured TPU ports")
	}

	idx := s.portIndex.Add(1) - 1

	tpuPort := s.cfg.TpuPorts[idx%uint64(len(s.cfg.TpuPorts))] + tpuAdvertisedPortOffset
	tpuForwardPort := s.cfg.TpuForwardsPorts[idx%uint64(len(s.cfg.TpuForwardsPorts))] + tpuAdvertisedPortOffset

	return &relayerpb.GetTpuConfigsResponse{
		Tpu:        relayerpb.Socket{Ip: s.cfg.PublicIP, Port: tpuPort},
		TpuForward: relayerpb.Socket{Ip: s.cfg.PublicIP, Port: tpuForwardPort},
	}, nil
}

// SubscribePackets admits the caller as a validator subscriber and
// streams batches/heartbeats until the stream ends, the subscriber is
// replaced by a newer subscription from the same identity, or it is
// dropped by the event loop (§4.7, §4.8, §6).
func (s *Service) SubscribePackets(_ *relayerpb.SubscribePacketsRequest, stream relayerpb.RelayerSubscribePacketsServer) error {
	if !s.healthy() {
		return errUnhealthy()
	}

	identity, ok := IdentityFromContext(stream.Context())
	if !ok {
		return status.Error(codes.Internal, "missing authenticated validator identity")
	}

	sub, err := s.cfg.Loop.Subscribe(stream.Context(), identity)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()

		case <-sub.Done():
			return nil

		case resp := <-sub.Recv():
			if err := stream.Send(resp); err != nil {
				sub.Close()
				return err
			}
		}
	}
}
