package replaypb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)
	assert.Equal(t, CodecName, codec.Name())
}

func TestCodec_BinaryFieldsAndIndices(t *testing.T) {
	in := &SampleResponse{
		Transitions: []*Transition{{
			Id:    "t-1",
			State: []byte{0, 1, 2, 255},
		}},
		TreeIndices: []int64{1023, 2046},
		Weights:     []float64{1, 0.25},
		Beta:        0.401,
	}

	data, err := Codec{}.Marshal(in)
	require.NoError(t, err)

	out := &SampleResponse{}
	require.NoError(t, Codec{}.Unmarshal(data, out))
	assert.Equal(t, in, out)
}
