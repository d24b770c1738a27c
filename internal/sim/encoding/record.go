package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	RouterRecordVersion = 3
	// RouterRecordSize is blend(2) + warmup(1) + heat(1) + fuse time(4).
	RouterRecordSize = 8
)

// RouterRecord is the persisted part of a fusion router. Warmup and heat are
// quantized to 1/128 steps.
type RouterRecord struct {
	BlendBits uint16
	Warmup    float64
	Heat      float64
	FuseTime  float32
}

// EncodeRouterRecord writes r big-endian. Warmup is stored as a signed byte, so
// a full network (1.0 -> 128) wraps to -128; DecodeRouterRecord undoes that.
func EncodeRouterRecord(r RouterRecord) []byte {
	buf := make([]byte, RouterRecordSize)
	binary.BigEndian.PutUint16(buf[0:2], r.BlendBits)
	buf[2] = byte(int8(int(quantize(r.Warmup))))
	buf[3] = uint8(int(quantize(r.Heat)))
	binary.BigEndian.PutUint32(buf[4:8], math.Float32bits(r.FuseTime))
	return buf
}

func DecodeRouterRecord(version int, b []byte) (RouterRecord, error) {
	if version != RouterRecordVersion {
		return RouterRecord{}, fmt.Errorf("router record version %d not supported", version)
	}
	if len(b) < RouterRecordSize {
		return RouterRecord{}, fmt.Errorf("router record truncated: %d bytes", len(b))
	}
	return RouterRecord{
		BlendBits: binary.BigEndian.Uint16(b[0:2]),
		Warmup:    math.Abs(float64(int8(b[2]))) / 128,
		Heat:      float64(b[3]) / 128,
		FuseTime:  math.Float32frombits(binary.BigEndian.Uint32(b[4:8])),
	}, nil
}

func quantize(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	}
	return math.Floor(v * 128)
}
