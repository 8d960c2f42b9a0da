package pb

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype under which jsonCodec is registered.
// A server built with grpc.ForceServerCodec(jsonCodec{}) and a client
// dialing with grpc.CallContentSubtype(codecName) exchange these wire
// structs without requiring them to implement proto.Message (see the
// package doc comment at the top of reduce.go).
const codecName = "json"

// jsonCodec implements encoding.Codec over encoding/json, used in place
// of the default protobuf codec because the wire types here are
// hand-written stand-ins for generated proto messages.
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

// Codec returns the encoding.Codec used by the reduce UDF service, for
// use with grpc.ForceServerCodec on the server and grpc.CallContentSubtype
// on the client.
func Codec() encoding.Codec {
	return jsonCodec{}
}

// CodecName is the content-subtype clients must request to talk to a
// server built with Codec().
const CodecName = codecName
