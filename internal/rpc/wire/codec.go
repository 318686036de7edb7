// Package wire defines the internal RPC contract between the services.
// The message shapes are the source of truth; they travel over gRPC with a
// JSON codec, keeping the transport an implementation detail and the
// in-process types free of transport attributes.
package wire

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype both ends of every internal call use.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: unmarshal: %w", err)
	}
	return nil
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallOption forces the JSON content-subtype on outbound calls.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
