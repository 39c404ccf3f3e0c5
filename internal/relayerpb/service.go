package relayerpb

import (
	"context"

	"google.golang.org/grpc"
)

// RelayerServer is the server API for the Relayer service (§6): exactly
// the two methods the spec names. The hand-written shape here mirrors
// what protoc-gen-go-grpc would generate, minus the protobuf descriptor
// plumbing this package deliberately avoids (see codec.go).
type RelayerServer interface {
	GetTpuConfigs(context.Context, *GetTpuConfigsRequest) (*GetTpuConfigsResponse, error)
	SubscribePackets(*SubscribePacketsRequest, RelayerSubscribePacketsServer) error
}

// RelayerSubscribePacketsServer is the server-side handle for the
// SubscribePackets server-streaming RPC.
type RelayerSubscribePacketsServer interface {
	Send(*SubscribeResponse) error
	grpc.ServerStream
}

type relayerSubscribePacketsServer struct {
	grpc.ServerStream
}

func (x *relayerSubscribePacketsServer) Send(m *SubscribeResponse) error {
	return x.ServerStream.SendMsg(m)
}

func _Relayer_GetTpuConfigs_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetTpuConfigsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayerServer).GetTpuConfigs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/relayer.Relayer/GetTpuConfigs",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayerServer).GetTpuConfigs(ctx, req.(*GetTpuConfigsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Relayer_SubscribePackets_Handler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribePacketsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RelayerServer).SubscribePackets(in, &relayerSubscribePacketsServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc for the Relayer service, passed to
// grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "relayer.Relayer",
	HandlerType: (*RelayerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetTpuConfigs",
			Handler:    _Relayer_GetTpuConfigs_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribePackets",
			Handler:       _Relayer_SubscribePackets_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "relayer.proto",
}

// RelayerClient is the client API for the Relayer service.
type RelayerClient interface {
	GetTpuConfigs(ctx context.Context, in *GetTpuConfigsRequest, opts ...grpc.CallOption) (*GetTpuConfigsResponse, error)
	SubscribePackets(ctx context.Context, in *SubscribePacketsRequest, opts ...grpc.CallOption) (RelayerSubscribePacketsClient, error)
}

type relayerClient struct {
	cc grpc.ClientConnInterface
}

// NewRelayerClient wraps a grpc.ClientConnInterface (e.g. from
// grpc.NewClient) in a typed RelayerClient.
func NewRelayerClient(cc grpc.ClientConnInterface) RelayerClient {
	return &relayerClient{cc}
}

func (c *relayerClient) GetTpuConfigs(ctx context.Context, in *GetTpuConfigsRequest, opts ...grpc.CallOption) (*GetTpuConfigsResponse, error) {
	out := new(GetTpuConfigsResponse)
	if err := c.cc.Invoke(ctx, "/relayer.Relayer/GetTpuConfigs", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *relayerClient) SubscribePackets(ctx context.Context, in *SubscribePacketsRequest, opts ...grpc.CallOption) (RelayerSubscribePacketsClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/relayer.Relayer/SubscribePackets", opts...)
	if err != nil {
		return nil, err
	}
	x := &relayerSubscribePacketsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// RelayerSubscribePacketsClient is the client-side handle for the
// SubscribePackets server-streaming RPC.
type RelayerSubscribePacketsClient interface {
	Recv() (*SubscribeResponse, error)
	grpc.ClientStream
}

type relayerSubscribePacketsClient struct {
	grpc.ClientStream
}

func (x *relayerSubscribePacketsClient) Recv() (*SubscribeResponse, error) {
	m := new(SubscribeResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
