package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "world_1", "120.snap.zst")
	in := SnapshotV1{
		Header:  Header{Version: Version, WorldID: "world_1", Tick: 120},
		Tuning:  []byte("tick_rate_hz: 60\n"),
		Palette: []string{"AIR", "FUSION_ROUTER"},
		Bounds:  BoundsV1{MinX: -1, MinY: 0, MaxX: 1, MaxY: 0},
		Grid:    "AQM=",
		Routers: []RouterV1{{
			Pos: [2]int{0, 0}, HP: 540, RecordVersion: 3, Record: []byte{0, 0, 0x80, 0x40, 0, 0, 0, 0},
			Fuel: 10, Network: 1, Heat: 0.5,
		}},
		Networks: []NetworkV1{{ID: 1, Warmup: 1, Members: [][2]int{{0, 0}}, Cursor: -1}},
		Counters: CountersV1{NextNetwork: 2, Emitted: 3},
	}
	require.NoError(t, WriteSnapshot(path, in))

	out, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, in, out)

	h, err := ReadHeader(path)
	require.NoError(t, err)
	require.Equal(t, in.Header, h)

	_, err = os.Stat(path + ".tmp")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRead_RejectsOtherVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	require.NoError(t, WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99}}))
	_, err := ReadSnapshot(path)
	require.ErrorContains(t, err, "version 99")
}

func TestBounds(t *testing.T) {
	b := BoundsV1{MinX: -2, MinY: 3, MaxX: 2, MaxY: 3}
	require.Equal(t, 5, b.Width())
	require.Equal(t, 1, b.Height())
}

func TestCompact(t *testing.T) {
	in := SnapshotV1{
		Routers: []RouterV1{{
			Pos: [2]int{1, 2}, HP: 10, RecordVersion: 3, Record: []byte{1}, Fuel: 4, Slot: 1,
			Network: 7, Heat: 0.3, FuseTime: 12,
		}},
		Networks: []NetworkV1{{ID: 7}},
		Pending:  []TaskV1{{Kind: "REFRESH", Network: 7}},
	}
	out := Compact(in)
	require.Nil(t, out.Networks)
	require.Nil(t, out.Pending)
	require.Equal(t, RouterV1{Pos: [2]int{1, 2}, HP: 10, RecordVersion: 3, Record: []byte{1}, Fuel: 4, Slot: 1}, out.Routers[0])
	require.Equal(t, uint64(7), in.Routers[0].Network, "input untouched")
}
