package relayerpb

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// codecName matches the name grpc-go's transport looks up by default
// (content-subtype "proto" maps to this name absent an explicit
// CallContentSubtype), which is how this codec is selected without every
// call site having to opt in explicitly.
const codecName = "proto"

// gobCodec implements encoding.Codec over encoding/gob, standing in for
// protobuf wire encoding so the plain Go structs in messages.go can travel
// over a real grpc-go transport (streaming, metadata, status codes,
// interceptors) without hand-authored protobuf descriptor/reflection code.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(gobCodec{})
}
