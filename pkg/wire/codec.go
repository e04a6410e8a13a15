package wire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is negotiated via grpc.CallContentSubtype on the client
// and matched against the server's registered codec.
const codecName = "json"

// jsonCodec implements encoding.Codec over encoding/json, replacing
// the protobuf wire format generated from a .proto file (which would
// otherwise require a protoc invocation this environment cannot run).
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
