package world

import (
	"math"

	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/fusion"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

// block is one placed tile. Blocks with items act as router consumers.
type block struct {
	pos grid.Pos
	id  uint16
	def catalogs.BlockDef

	hp    float64
	items int
	fuel  float64

	removed bool
}

func (b *block) CanAccept(_ grid.Pos, _ string) bool {
	return !b.removed && b.def.HasItems && b.items < b.def.Capacity
}

func (b *block) Accept(from grid.Pos, item string) error {
	if !b.CanAccept(from, item) {
		return fusion.ErrRejected
	}
	b.items++
	return nil
}

func (b *block) isRouter() bool { return b.def.Kind == catalogs.KindFusionRouter }

func (w *World) paletteID(p grid.Pos) uint16 {
	if b := w.blocks[p]; b != nil {
		return b.id
	}
	return 0
}

func (w *World) inBounds(p grid.Pos) bool {
	r := w.cfg.Tuning.WorldBoundaryR
	return p.X >= -r && p.X <= r && p.Y >= -r && p.Y <= r
}

func (w *World) isRouterAt(p grid.Pos) bool {
	b := w.blocks[p]
	return b != nil && b.isRouter()
}

// placeBlock puts def at an empty position p. Routers join the graph right
// away and merge with any network they touch.
func (w *World) placeBlock(nowTick uint64, actor string, p grid.Pos, def catalogs.BlockDef, reason string) *block {
	b := &block{
		pos: p,
		id:  w.catalogs.Blocks.Index[def.ID],
		def: def,
		hp:  def.Health,
	}
	w.blocks[p] = b
	if b.isRouter() {
		w.graph.Place(p)
	}
	w.auditSetBlock(nowTick, actor, p, 0, b.id, reason)
	w.updateProximity(p)
	return b
}

// removeBlock clears p. A removed router leaves its network stale until the
// Refresh posted here runs at the end of the tick.
func (w *World) removeBlock(nowTick uint64, actor string, p grid.Pos, reason string) *block {
	b := w.blocks[p]
	if b == nil {
		return nil
	}
	b.removed = true
	delete(w.blocks, p)
	if b.isRouter() {
		w.postRefresh(nowTick, w.graph.Remove(p), p)
	}
	w.auditSetBlock(nowTick, actor, p, b.id, 0, reason)
	w.updateProximity(p)
	return b
}

// updateProximity recomputes outputs and blend bits of every router in the
// 3x3 area around p.
func (w *World) updateProximity(p grid.Pos) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			q := grid.Pos{X: p.X + dx, Y: p.Y + dy}
			if w.isRouterAt(q) {
				w.refreshOutputs(q)
			}
		}
	}
}

func (w *World) refreshOutputs(p grid.Pos) {
	blend := grid.BlendBits(p, w.isRouterAt)
	w.postRebuildOutputs(w.graph.SetOutputs(p, w.outputsAt(p), blend))
}

// damageBlock applies damage to the block at p and destroys it once its health
// runs out. Blocks with no health are indestructible.
func (w *World) damageBlock(nowTick uint64, actor string, p grid.Pos, damage float64, reason string) bool {
	b := w.blocks[p]
	if b == nil || damage <= 0 || b.def.Health <= 0 {
		return false
	}
	b.hp -= damage
	if b.hp > 0 {
		return false
	}
	w.removeBlock(nowTick, actor, p, reason)
	return true
}

func (w *World) auditSetBlock(nowTick uint64, actor string, p grid.Pos, from, to uint16, reason string) {
	w.audit(AuditEntry{
		Tick:   nowTick,
		Actor:  actor,
		Action: AuditSetBlock,
		Pos:    p.ToArray(),
		From:   from,
		To:     to,
		Reason: reason,
	})
}

// systemFuel pushes fuel from tanks into adjacent routers, then levels fuel
// between routers.
func (w *World) systemFuel() {
	flow := w.cfg.Tuning.Fusion.FuelFlow * w.cfg.Tuning.DeltaPerTick
	if flow > 0 {
		for _, p := range grid.SortedKeys(w.blocks) {
			b := w.blocks[p]
			if b.def.Kind != catalogs.KindFuelTank {
				continue
			}
			for _, d := range grid.Dirs {
				if b.fuel <= 0 {
					break
				}
				q := p.Nearby(d)
				if !w.isRouterAt(q) {
					continue
				}
				b.fuel -= w.graph.AddFuel(q, math.Min(flow, b.fuel))
			}
		}
	}
	w.graph.ShareFuel(w.cfg.Tuning.DeltaPerTick)
}

// systemPower records each network's power ratio for this tick.
func (w *World) systemPower() {
	clear(w.power)
	for _, id := range w.graph.NetworkIDs() {
		if r, ok := w.networkPower(id); ok {
			w.power[id] = r
		}
	}
}

// networkPower is the output of the power nodes touching any member over the
// members' combined use, capped at 1. ok is false for a network with no live
// members.
func (w *World) networkPower(id fusion.NetworkID) (ratio float64, ok bool) {
	net := w.graph.Network(id)
	if net == nil {
		return 0, false
	}
	f := w.cfg.Tuning.Fusion
	live := 0
	sources := map[grid.Pos]bool{}
	for _, p := range net.Members() {
		if n := w.graph.Node(p); n == nil || n.Network() != id {
			continue
		}
		live++
		for _, d := range grid.Dirs {
			q := p.Nearby(d)
			if b := w.blocks[q]; b != nil && b.def.Kind == catalogs.KindPowerNode {
				sources[q] = true
			}
		}
	}
	if live == 0 {
		return 0, false
	}
	supply := float64(len(sources)) * f.PowerNodeOutput
	demand := float64(live) * f.PowerUse
	return math.Min(supply/demand, 1), true
}
