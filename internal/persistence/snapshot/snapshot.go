package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Tuning is the yaml the world ran with.
	Tuning       []byte `json:"tuning"`
	TuningDigest string `json:"tuning_digest"`

	Palette       []string `json:"palette"`
	PaletteDigest string   `json:"palette_digest"`

	// Grid is the RLE-encoded palette id of every cell in Bounds, row-major.
	Bounds BoundsV1 `json:"bounds"`
	Grid   string   `json:"grid"`

	Blocks   []BlockV1   `json:"blocks,omitempty"`
	Routers  []RouterV1  `json:"routers"`
	Networks []NetworkV1 `json:"networks,omitempty"`
	Pending  []TaskV1    `json:"pending,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type BoundsV1 struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

func (b BoundsV1) Width() int  { return b.MaxX - b.MinX + 1 }
func (b BoundsV1) Height() int { return b.MaxY - b.MinY + 1 }

// BlockV1 is the mutable state of a non-router block.
type BlockV1 struct {
	Pos   [2]int  `json:"pos"`
	HP    float64 `json:"hp"`
	Items int     `json:"items,omitempty"`
	Fuel  float64 `json:"fuel,omitempty"`
}

// RouterV1 carries the versioned router record plus the state the record
// does not hold. Network, Heat and FuseTime are exact copies; when Networks
// is empty the importer falls back to the record alone.
type RouterV1 struct {
	Pos           [2]int  `json:"pos"`
	HP            float64 `json:"hp"`
	RecordVersion int     `json:"record_version"`
	Record        []byte  `json:"record"`
	Fuel          float64 `json:"fuel"`
	Slot          int     `json:"slot"`

	Network  uint64  `json:"network,omitempty"`
	Heat     float64 `json:"heat,omitempty"`
	FuseTime float64 `json:"fuse_time,omitempty"`
}

type NetworkV1 struct {
	ID      uint64   `json:"id"`
	Warmup  float64  `json:"warmup"`
	Members [][2]int `json:"members"`
	Cursor  int      `json:"cursor"`
}

type TaskV1 struct {
	Kind       string `json:"kind"`
	Network    uint64 `json:"network"`
	Pos        [2]int `json:"pos"`
	PostedTick uint64 `json:"posted_tick"`
}

type CountersV1 struct {
	NextNetwork uint64 `json:"next_network"`
	Emitted     uint64 `json:"emitted"`
	Delivered   uint64 `json:"delivered"`
	Meltdowns   uint64 `json:"meltdowns"`
	Strikes     uint64 `json:"strikes"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools that only need the tick; gob repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// Compact drops the exact network state and keeps only what the versioned
// router records carry. Importing the result re-merges routers from scratch.
func Compact(snap SnapshotV1) SnapshotV1 {
	out := snap
	out.Networks = nil
	out.Pending = nil
	out.Routers = make([]RouterV1, len(snap.Routers))
	for i, r := range snap.Routers {
		r.Network = 0
		r.Heat = 0
		r.FuseTime = 0
		out.Routers[i] = r
	}
	return out
}
