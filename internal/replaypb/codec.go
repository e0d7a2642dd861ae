package replaypb

import (
	"github.com/sugawarayuuta/sonnet"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype for JSON-encoded messages
const CodecName = "json"

// Codec marshals replay messages as JSON
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

func (Codec) Marshal(v any) ([]byte, error) {
	return sonnet.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return sonnet.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
