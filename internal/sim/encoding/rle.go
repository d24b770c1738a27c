package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// EncodeRLE packs palette ids as base64 of (id, run) uvarint pairs. Grids
// are mostly air, so a row of empty cells costs a few bytes.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	for i := 0; i < len(ids); {
		j := i + 1
		for j < len(ids) && ids[j] == ids[i] {
			j++
		}
		put(uint64(ids[i]))
		put(uint64(j - i))
		i = j
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

var ErrRLECells = errors.New("rle: cell count mismatch")

// DecodeRLE expands an EncodeRLE string that must hold exactly cells ids.
// Runs are checked against cells before expanding, so a corrupt stream
// cannot force a large allocation.
func DecodeRLE(b64 string, cells int) ([]uint16, error) {
	if cells < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrRLECells, cells)
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("rle: %w", err)
	}
	out := make([]uint16, 0, cells)
	for i := 0; i < len(raw); {
		id, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("rle: bad id varint at byte %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("rle: bad run varint at byte %d", i)
		}
		i += n
		switch {
		case id > 0xFFFF:
			return nil, fmt.Errorf("rle: palette id %d out of range", id)
		case run == 0:
			return nil, fmt.Errorf("rle: empty run at byte %d", i)
		case run > uint64(cells-len(out)):
			return nil, fmt.Errorf("%w: more than %d", ErrRLECells, cells)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(id))
		}
	}
	if len(out) != cells {
		return nil, fmt.Errorf("%w: got %d want %d", ErrRLECells, len(out), cells)
	}
	return out, nil
}
