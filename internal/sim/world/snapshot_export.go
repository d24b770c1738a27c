package world

import (
	"gopkg.in/yaml.v3"

	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/encoding"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	tun, _ := yaml.Marshal(w.cfg.Tuning)
	s := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: nowTick},
		Tuning:        tun,
		TuningDigest:  w.cfg.TuningDigest,
		Palette:       w.BlockPalette(),
		PaletteDigest: w.catalogs.Blocks.PaletteDigest,
		Counters: snapshot.CountersV1{
			NextNetwork: uint64(w.graph.NextNetworkID()),
			Emitted:     w.counters.Emitted,
			Delivered:   w.counters.Delivered,
			Meltdowns:   w.counters.Meltdowns,
			Strikes:     w.counters.Strikes,
		},
	}

	s.Bounds = w.bounds()
	ids := make([]uint16, 0, s.Bounds.Width()*s.Bounds.Height())
	for y := s.Bounds.MinY; y <= s.Bounds.MaxY; y++ {
		for x := s.Bounds.MinX; x <= s.Bounds.MaxX; x++ {
			ids = append(ids, w.paletteID(grid.Pos{X: x, Y: y}))
		}
	}
	s.Grid = encoding.EncodeRLE(ids)

	for _, p := range grid.SortedKeys(w.blocks) {
		b := w.blocks[p]
		if b.isRouter() {
			continue
		}
		s.Blocks = append(s.Blocks, snapshot.BlockV1{Pos: p.ToArray(), HP: b.hp, Items: b.items, Fuel: b.fuel})
	}

	nodes, nets := w.graph.Export()
	warmup := map[uint64]float64{}
	for _, net := range nets {
		warmup[uint64(net.ID)] = net.Warmup
		members := make([][2]int, 0, len(net.Members))
		for _, p := range net.Members {
			members = append(members, p.ToArray())
		}
		s.Networks = append(s.Networks, snapshot.NetworkV1{
			ID:      uint64(net.ID),
			Warmup:  net.Warmup,
			Members: members,
			Cursor:  net.Cursor,
		})
	}
	for _, n := range nodes {
		rec := encoding.EncodeRouterRecord(encoding.RouterRecord{
			BlendBits: n.BlendBits,
			Warmup:    warmup[uint64(n.Network)],
			Heat:      n.Heat,
			FuseTime:  float32(n.FuseTime),
		})
		var hp float64
		if b := w.blocks[n.Pos]; b != nil {
			hp = b.hp
		}
		s.Routers = append(s.Routers, snapshot.RouterV1{
			Pos:           n.Pos.ToArray(),
			HP:            hp,
			RecordVersion: encoding.RouterRecordVersion,
			Record:        rec,
			Fuel:          n.Fuel,
			Slot:          n.Slot,
			Network:       uint64(n.Network),
			Heat:          n.Heat,
			FuseTime:      n.FuseTime,
		})
	}

	for _, t := range w.queue.Pending() {
		s.Pending = append(s.Pending, snapshot.TaskV1{
			Kind:       string(t.Kind),
			Network:    t.Network,
			Pos:        t.Pos.ToArray(),
			PostedTick: t.PostedTick,
		})
	}
	return s
}

// bounds is the smallest box holding every block; a lone cell at the origin
// for an empty world.
func (w *World) bounds() snapshot.BoundsV1 {
	if len(w.blocks) == 0 {
		return snapshot.BoundsV1{}
	}
	first := true
	var b snapshot.BoundsV1
	for p := range w.blocks {
		if first {
			b = snapshot.BoundsV1{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
			first = false
			continue
		}
		b.MinX = min(b.MinX, p.X)
		b.MinY = min(b.MinY, p.Y)
		b.MaxX = max(b.MaxX, p.X)
		b.MaxY = max(b.MaxY, p.Y)
	}
	return b
}
