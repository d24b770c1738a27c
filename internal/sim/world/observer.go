package world

import (
	"encoding/json"

	"github.com/DeltaNedas/routorio-old/internal/observerproto"
	"github.com/DeltaNedas/routorio-old/internal/sim/fusion"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

type observerClient struct {
	id      string
	tickOut chan []byte

	center     grid.Pos
	radius     int
	maxRouters int
}

func (c *observerClient) sees(p [2]int) bool {
	return abs(p[0]-c.center.X) <= c.radius && abs(p[1]-c.center.Y) <= c.radius
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:         req.SessionID,
		tickOut:    req.TickOut,
		center:     grid.PosFromArray(req.Center),
		radius:     clampInt(req.Radius, 1, 256, 32),
		maxRouters: clampInt(req.MaxRouters, 1, 8192, 1024),
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.center = grid.PosFromArray(req.Center)
	c.radius = clampInt(req.Radius, 1, 256, c.radius)
	c.maxRouters = clampInt(req.MaxRouters, 1, 8192, c.maxRouters)
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

func (w *World) stepObservers(nowTick uint64) {
	if len(w.observers) == 0 {
		return
	}

	routers := w.observerRouters()
	nets := map[uint64]observerproto.NetworkSummary{}
	for _, id := range w.graph.NetworkIDs() {
		net := w.graph.Network(id)
		nets[uint64(id)] = observerproto.NetworkSummary{
			ID:      uint64(id),
			Members: net.Len(),
			Warmup:  net.Warmup,
			Edges:   net.EdgeCount(),
			Cursor:  net.Cursor(),
			Power:   w.power[id],
		}
	}
	counters := observerproto.Counters{
		Emitted:   w.counters.Emitted,
		Delivered: w.counters.Delivered,
		Meltdowns: w.counters.Meltdowns,
		Strikes:   w.counters.Strikes,
	}

	for _, c := range w.observers {
		msg := observerproto.TickMsg{
			Type:            "TICK",
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			Counters:        counters,
		}
		seen := map[uint64]bool{}
		for _, r := range routers {
			if len(msg.Routers) >= c.maxRouters {
				break
			}
			if !c.sees(r.Pos) {
				continue
			}
			msg.Routers = append(msg.Routers, r)
			if r.Network != 0 && !seen[r.Network] {
				seen[r.Network] = true
				if s, ok := nets[r.Network]; ok {
					msg.Networks = append(msg.Networks, s)
				}
			}
		}
		for _, e := range w.eventsThisTick {
			if c.sees(e.Pos) {
				msg.Events = append(msg.Events, e)
			}
		}
		for _, a := range w.auditsThisTick {
			if !c.sees(a.Pos) {
				continue
			}
			msg.Audits = append(msg.Audits, observerproto.AuditEntry{
				Tick:   a.Tick,
				Actor:  a.Actor,
				Action: a.Action,
				Pos:    a.Pos,
				From:   a.From,
				To:     a.To,
				Reason: a.Reason,
			})
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

// observerRouters reports every router in row-major order.
func (w *World) observerRouters() []observerproto.RouterState {
	cfg := w.graph.Config()
	positions := w.graph.Positions()
	out := make([]observerproto.RouterState, 0, len(positions))
	for _, p := range positions {
		n := w.graph.Node(p)
		out = append(out, observerproto.RouterState{
			Pos:            p.ToArray(),
			Network:        uint64(n.Network()),
			Heat:           n.Heat,
			Fuel:           n.Fuel,
			Slot:           n.Slot,
			State:          w.graph.State(p).String(),
			Warmup:         w.graph.Warmup(p),
			PowerOutput:    w.graph.PowerOutput(p),
			ProductionRate: w.graph.ProductionRate(p),
			Warning:        warningOf(w.graph, p, cfg.FuseHeat, n),
		})
	}
	return out
}

func warningOf(g *fusion.Graph, p grid.Pos, fuseHeat float64, n *fusion.Node) float64 {
	if n.Slot == 0 || n.Heat < fuseHeat {
		return 0
	}
	return g.Warning(p)
}

func clampInt(v, lo, hi, def int) int {
	if v == 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
