package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouterRecord_Layout(t *testing.T) {
	b := EncodeRouterRecord(RouterRecord{BlendBits: 0x0102, Warmup: 0.5, Heat: 0.25, FuseTime: 1.5})
	require.Equal(t, []byte{0x01, 0x02, 64, 32, 0x3f, 0xc0, 0x00, 0x00}, b)
}

func TestRouterRecord_FullWarmupWrapsSign(t *testing.T) {
	b := EncodeRouterRecord(RouterRecord{Warmup: 1, Heat: 1})
	require.Equal(t, int8(-128), int8(b[2]))
	require.Equal(t, byte(128), b[3])

	r, err := DecodeRouterRecord(RouterRecordVersion, b)
	require.NoError(t, err)
	require.Equal(t, 1.0, r.Warmup)
	require.Equal(t, 1.0, r.Heat)
}

func TestRouterRecord_RoundTripQuantized(t *testing.T) {
	in := RouterRecord{BlendBits: 0xF00F, Warmup: 0.999, Heat: 0.3, FuseTime: 4321.5}
	out, err := DecodeRouterRecord(RouterRecordVersion, EncodeRouterRecord(in))
	require.NoError(t, err)
	require.Equal(t, in.BlendBits, out.BlendBits)
	require.Equal(t, in.FuseTime, out.FuseTime)
	require.InDelta(t, in.Warmup, out.Warmup, 1.0/128)
	require.InDelta(t, in.Heat, out.Heat, 1.0/128)

	// Out of range values clamp before quantizing.
	out, err = DecodeRouterRecord(RouterRecordVersion, EncodeRouterRecord(RouterRecord{Warmup: -3, Heat: 7}))
	require.NoError(t, err)
	require.Zero(t, out.Warmup)
	require.Equal(t, 1.0, out.Heat)
}

func TestRouterRecord_DecodeErrors(t *testing.T) {
	_, err := DecodeRouterRecord(RouterRecordVersion, []byte{1, 2, 3})
	require.ErrorContains(t, err, "truncated")

	_, err = DecodeRouterRecord(2, make([]byte, RouterRecordSize))
	require.Error(t, err)
}
