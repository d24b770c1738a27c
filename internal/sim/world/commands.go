package world

import (
	"fmt"
	"math"

	"github.com/DeltaNedas/routorio-old/internal/observerproto"
	"github.com/DeltaNedas/routorio-old/internal/protocol"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

func (w *World) applyCommand(nowTick uint64, actor string, cmd protocol.CmdMsg) protocol.AckMsg {
	p := grid.PosFromArray(cmd.Pos)
	if !w.inBounds(p) {
		return protocol.NewAck(cmd.ID, nowTick, protocol.ErrInvalidTarget, "out of bounds")
	}
	var code, msg string
	switch cmd.Op {
	case protocol.OpPlace:
		code, msg = w.cmdPlace(nowTick, actor, p, cmd.Block)
	case protocol.OpRemove:
		code, msg = w.cmdRemove(nowTick, actor, p)
	case protocol.OpStrike:
		code, msg = w.cmdStrike(nowTick, actor, p, cmd.Damage, cmd.Status == protocol.StatusShocked)
	case protocol.OpFuel:
		code, msg = w.cmdFuel(nowTick, actor, p, cmd.Amount)
	case protocol.OpDrain:
		code, msg = w.cmdDrain(nowTick, actor, p, cmd.Amount)
	default:
		code, msg = protocol.ErrBadRequest, fmt.Sprintf("unknown op %q", cmd.Op)
	}
	return protocol.NewAck(cmd.ID, nowTick, code, msg)
}

func (w *World) cmdPlace(nowTick uint64, actor string, p grid.Pos, id string) (string, string) {
	def, ok := w.catalogs.Blocks.Lookup(id)
	if !ok {
		return protocol.ErrBadRequest, fmt.Sprintf("unknown block %q", id)
	}
	if def.Kind == catalogs.KindAir {
		return protocol.ErrBadRequest, "use REMOVE to clear a tile"
	}
	if w.blocks[p] != nil {
		return protocol.ErrConflict, "tile occupied"
	}
	w.placeBlock(nowTick, actor, p, def, "PLACE")
	return "", ""
}

func (w *World) cmdRemove(nowTick uint64, actor string, p grid.Pos) (string, string) {
	if w.removeBlock(nowTick, actor, p, "REMOVE") == nil {
		return protocol.ErrInvalidTarget, "nothing to remove"
	}
	return "", ""
}

func (w *World) cmdStrike(nowTick uint64, actor string, p grid.Pos, damage float64, shocked bool) (string, string) {
	if damage <= 0 {
		return protocol.ErrBadRequest, "damage must be positive"
	}
	if w.blocks[p] == nil {
		return protocol.ErrInvalidTarget, "nothing to strike"
	}
	w.strike(nowTick, actor, p, damage, shocked, "STRIKE")
	return "", ""
}

// strike hits the block at p. Routers route the hit through the thermal
// engine first, which may shield part of it. Power is measured at the moment
// of the hit.
func (w *World) strike(nowTick uint64, actor string, p grid.Pos, damage float64, shocked bool, reason string) {
	taken := damage
	if w.isRouterAt(p) {
		power, _ := w.networkPower(w.graph.Node(p).Network())
		taken = w.graph.Strike(p, power, damage, shocked)
	}
	w.counters.Strikes++
	w.event(observerproto.TickEvent{Type: observerproto.EventStrike, Pos: p.ToArray(), Value: taken})
	w.audit(AuditEntry{
		Tick:   nowTick,
		Actor:  actor,
		Action: AuditStrike,
		Pos:    p.ToArray(),
		Value:  taken,
		Reason: reason,
	})
	w.damageBlock(nowTick, actor, p, taken, reason)
}

func (w *World) cmdFuel(nowTick uint64, actor string, p grid.Pos, amount float64) (string, string) {
	if amount <= 0 {
		return protocol.ErrBadRequest, "amount must be positive"
	}
	b := w.blocks[p]
	if b == nil {
		return protocol.ErrInvalidTarget, "no block"
	}
	var took float64
	switch b.def.Kind {
	case catalogs.KindFusionRouter:
		took = w.graph.AddFuel(p, amount)
	case catalogs.KindFuelTank:
		took = math.Min(amount, math.Max(float64(b.def.Capacity)-b.fuel, 0))
		b.fuel += took
	default:
		return protocol.ErrInvalidTarget, "block holds no fuel"
	}
	if took == 0 {
		return protocol.ErrConflict, "full"
	}
	w.audit(AuditEntry{Tick: nowTick, Actor: actor, Action: AuditFuel, Pos: p.ToArray(), Value: took})
	return "", ""
}

// cmdDrain empties up to amount items from a consumer; zero drains it all.
func (w *World) cmdDrain(nowTick uint64, actor string, p grid.Pos, amount float64) (string, string) {
	b := w.blocks[p]
	if b == nil || !b.def.HasItems {
		return protocol.ErrInvalidTarget, "block holds no items"
	}
	n := b.items
	if amount > 0 {
		n = min(n, int(amount))
	}
	b.items -= n
	w.audit(AuditEntry{Tick: nowTick, Actor: actor, Action: AuditDrain, Pos: p.ToArray(), Value: float64(n)})
	return "", ""
}
