package world

import (
	"math"

	"github.com/DeltaNedas/routorio-old/internal/observerproto"
	"github.com/DeltaNedas/routorio-old/internal/sim/fusion"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

func (w *World) handleMeltdown(nowTick uint64, m *fusion.Meltdown) {
	w.counters.Meltdowns++
	w.event(observerproto.TickEvent{
		Type:    observerproto.EventMeltdown,
		Pos:     m.Pos.ToArray(),
		Network: uint64(m.Network),
		Value:   m.Heat,
	})
	w.audit(AuditEntry{
		Tick:    nowTick,
		Actor:   "WORLD",
		Action:  AuditMeltdown,
		Pos:     m.Pos.ToArray(),
		Network: uint64(m.Network),
		Value:   m.Heat,
	})
	w.removeBlock(nowTick, "WORLD", m.Pos, "MELTDOWN")

	if !m.Blast {
		return
	}
	w.explode(nowTick, m.Pos, m.Radius, m.Damage)
	dmg := w.cfg.Tuning.Fusion.IgnitionDamage
	for _, q := range m.Ignitions {
		if w.isRouterAt(q) {
			w.strike(nowTick, "WORLD", q, dmg, true, "IGNITION")
		}
	}
}

// explode damages every block within radius of center, falling off linearly
// with distance. Tiles are visited row by row.
func (w *World) explode(nowTick uint64, center grid.Pos, radius int, damage float64) {
	if radius <= 0 || damage <= 0 {
		return
	}
	r := float64(radius)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			dist := math.Hypot(float64(dx), float64(dy))
			if dist >= r {
				continue
			}
			q := grid.Pos{X: center.X + dx, Y: center.Y + dy}
			w.damageBlock(nowTick, "WORLD", q, damage*(1-dist/r), "EXPLOSION")
		}
	}
}
