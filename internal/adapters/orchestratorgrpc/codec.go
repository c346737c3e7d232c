// Package orchestratorgrpc implements ports.OrchestratorPort over gRPC,
// adapted from the appliance daemon's grpcserver package: a long-lived
// server process agents dial into to report health/drift and pull pending
// healing commands. Unlike the teacher's protoc-generated wire format, the
// service here is defined with a hand-registered JSON codec — see
// DESIGN.md for why.
package orchestratorgrpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "chimera-json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json, letting the service use plain Go structs as messages
// instead of protoc-generated types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
