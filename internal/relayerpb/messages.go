// Package relayerpb defines the egress RPC surface (§6): GetTpuConfigs and
// SubscribePackets. Rather than hand-authoring protobuf wire encoding and
// descriptor/reflection boilerplate by hand (which cannot be verified
// without the protoc toolchain), messages are plain Go structs carried
// over a real google.golang.org/grpc transport using a gob-based Codec
// (see codec.go) registered under the name the grpc-go runtime looks up
// by default. Streaming, metadata, status codes, and interceptors are all
// the genuine grpc-go implementations; only the wire encoding differs
// from protobuf.
package relayerpb

// Socket is an advertised UDP endpoint.
type Socket struct {
	Ip   string
	Port int32
}

// GetTpuConfigsRequest is the (empty) request for GetTpuConfigs.
type GetTpuConfigsRequest struct{}

// GetTpuConfigsResponse answers GetTpuConfigs: the direct and forwards TPU
// sockets a caller should address transactions to.
type GetTpuConfigsResponse struct {
	Tpu        Socket
	TpuForward Socket
}

// SubscribePacketsRequest is the (empty) request for SubscribePackets.
type SubscribePacketsRequest struct{}

// Header carries the server-generated timestamp shared by both variants
// of SubscribeResponse.
type Header struct {
	TsUnixNano int64
}

// PacketMeta is the per-packet metadata carried alongside its payload.
type PacketMeta struct {
	Addr string
	Port uint16
	Size uint64
}

// Packet is one projected, wire-ready transaction packet.
type Packet struct {
	Data []byte
	Meta PacketMeta
}

// PacketBatch is a sub-batch of Packet, chunked to
// validator_packet_batch_size before emission (§4.8).
type PacketBatch struct {
	Packets []Packet
}

// Heartbeat carries the monotonically increasing heartbeat counter (§4.6).
type Heartbeat struct {
	Count uint64
}

// SubscribeResponse is the streamed message for SubscribePackets: exactly
// one of Batch or Heartbeat is set, per §3.
type SubscribeResponse struct {
	Header    Header
	Batch     *PacketBatch
	Heartbeat *Heartbeat
}
