package world

import (
	"fmt"

	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/encoding"
	"github.com/DeltaNedas/routorio-old/internal/sim/fusion"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
	"github.com/DeltaNedas/routorio-old/internal/sim/tasks"
)

// ImportSnapshot replaces the current in-memory world state with s and sets
// the tick to s.Header.Tick+1.
//
// Snapshots that carry networks are restored exactly. Without them every
// router comes back in its own network with the warmup from its record and
// the networks re-merge before ImportSnapshot returns.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("snapshot version %d not supported", s.Header.Version)
	}
	remap, err := w.paletteRemap(s.Palette)
	if err != nil {
		return err
	}
	ids, err := encoding.DecodeRLE(s.Grid, s.Bounds.Width()*s.Bounds.Height())
	if err != nil {
		return fmt.Errorf("snapshot grid: %w", err)
	}

	w.blocks = map[grid.Pos]*block{}
	w.graph = w.newGraph()
	w.queue = tasks.NewQueue()
	clear(w.power)
	clear(w.awaitingRefresh)
	w.counters = Counters{
		Emitted:   s.Counters.Emitted,
		Delivered: s.Counters.Delivered,
		Meltdowns: s.Counters.Meltdowns,
		Strikes:   s.Counters.Strikes,
	}

	i := 0
	for y := s.Bounds.MinY; y <= s.Bounds.MaxY; y++ {
		for x := s.Bounds.MinX; x <= s.Bounds.MaxX; x++ {
			id := ids[i]
			i++
			if int(id) >= len(remap) {
				return fmt.Errorf("snapshot grid: palette id %d out of range", id)
			}
			if remap[id] == 0 {
				continue
			}
			def := w.catalogs.Blocks.Defs[w.catalogs.Blocks.Palette[remap[id]]]
			p := grid.Pos{X: x, Y: y}
			w.blocks[p] = &block{pos: p, id: remap[id], def: def, hp: def.Health}
		}
	}
	for _, bs := range s.Blocks {
		b := w.blocks[grid.PosFromArray(bs.Pos)]
		if b == nil || b.isRouter() {
			return fmt.Errorf("snapshot block state at %v has no block", bs.Pos)
		}
		b.hp, b.items, b.fuel = bs.HP, bs.Items, bs.Fuel
	}

	seen := map[grid.Pos]bool{}
	for _, rs := range s.Routers {
		p := grid.PosFromArray(rs.Pos)
		b := w.blocks[p]
		if b == nil || !b.isRouter() {
			return fmt.Errorf("snapshot router at %v is not a router block", rs.Pos)
		}
		b.hp = rs.HP
		seen[p] = true
	}
	for p, b := range w.blocks {
		if b.isRouter() && !seen[p] {
			return fmt.Errorf("router block at %v has no record", p.ToArray())
		}
	}

	if len(s.Networks) > 0 {
		err = w.importExact(s)
	} else {
		err = w.importRecords(s)
	}
	if err != nil {
		return err
	}

	w.tick.Store(s.Header.Tick + 1)
	return nil
}

func (w *World) paletteRemap(palette []string) ([]uint16, error) {
	out := make([]uint16, len(palette))
	for i, name := range palette {
		id, ok := w.catalogs.Blocks.Index[name]
		if !ok {
			return nil, fmt.Errorf("snapshot palette: unknown block %q", name)
		}
		if i == 0 && id != 0 {
			return nil, fmt.Errorf("snapshot palette: %q at id 0", name)
		}
		out[i] = id
	}
	return out, nil
}

func (w *World) importExact(s snapshot.SnapshotV1) error {
	nodes := make([]fusion.NodeState, 0, len(s.Routers))
	for _, rs := range s.Routers {
		rec, err := encoding.DecodeRouterRecord(rs.RecordVersion, rs.Record)
		if err != nil {
			return fmt.Errorf("router %v: %w", rs.Pos, err)
		}
		nodes = append(nodes, fusion.NodeState{
			Pos:       grid.PosFromArray(rs.Pos),
			Network:   fusion.NetworkID(rs.Network),
			Heat:      rs.Heat,
			Fuel:      rs.Fuel,
			FuseTime:  rs.FuseTime,
			Slot:      rs.Slot,
			BlendBits: rec.BlendBits,
		})
	}
	nets := make([]fusion.NetworkState, 0, len(s.Networks))
	for _, ns := range s.Networks {
		members := make([]grid.Pos, 0, len(ns.Members))
		for _, m := range ns.Members {
			members = append(members, grid.PosFromArray(m))
		}
		nets = append(nets, fusion.NetworkState{ID: fusion.NetworkID(ns.ID), Warmup: ns.Warmup, Members: members, Cursor: ns.Cursor})
	}
	if err := w.graph.Load(nodes, nets, fusion.NetworkID(s.Counters.NextNetwork)); err != nil {
		return fmt.Errorf("snapshot networks: %w", err)
	}

	w.restoreOutputs()
	for _, ns := range s.Networks {
		id := fusion.NetworkID(ns.ID)
		w.graph.RebuildOutputs(id)
		if err := w.graph.SetCursor(id, ns.Cursor); err != nil {
			return fmt.Errorf("snapshot networks: %w", err)
		}
	}
	for _, ts := range s.Pending {
		w.queue.Post(tasks.Task{
			Kind:       tasks.Kind(ts.Kind),
			Network:    ts.Network,
			Pos:        grid.PosFromArray(ts.Pos),
			PostedTick: ts.PostedTick,
		})
		if tasks.Kind(ts.Kind) == tasks.KindRefresh {
			w.awaitingRefresh[fusion.NetworkID(ts.Network)] = true
		}
	}
	return nil
}

func (w *World) importRecords(s snapshot.SnapshotV1) error {
	var restored []fusion.NetworkID
	for _, rs := range s.Routers {
		rec, err := encoding.DecodeRouterRecord(rs.RecordVersion, rs.Record)
		if err != nil {
			return fmt.Errorf("router %v: %w", rs.Pos, err)
		}
		id := w.graph.Restore(grid.PosFromArray(rs.Pos), fusion.RestoreState{
			Heat:      rec.Heat,
			Fuel:      rs.Fuel,
			FuseTime:  float64(rec.FuseTime),
			Slot:      rs.Slot,
			BlendBits: rec.BlendBits,
			Warmup:    rec.Warmup,
		})
		restored = append(restored, id)
	}
	w.graph.SetNextNetworkID(fusion.NetworkID(s.Counters.NextNetwork))
	w.restoreOutputs()
	for _, id := range restored {
		w.queue.Post(tasks.Task{Kind: tasks.KindRefresh, Network: uint64(id), PostedTick: s.Header.Tick})
	}
	w.drainTasks(s.Header.Tick)
	return nil
}

// restoreOutputs reconnects every router to its adjacent consumers without
// scheduling list rebuilds and keeps the saved blend bits.
func (w *World) restoreOutputs() {
	for _, p := range w.graph.Positions() {
		w.graph.SetOutputs(p, w.outputsAt(p), w.graph.Node(p).BlendBits)
	}
}

func (w *World) outputsAt(p grid.Pos) []fusion.Output {
	var outs []fusion.Output
	for _, d := range grid.Dirs {
		q := p.Nearby(d)
		b := w.blocks[q]
		if b == nil || b.isRouter() || !b.def.HasItems {
			continue
		}
		outs = append(outs, fusion.Output{Pos: q, Consumer: b, Magnet: b.def.Magnet})
	}
	return outs
}

var _ fusion.Consumer = (*block)(nil)
