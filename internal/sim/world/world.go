package world

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/DeltaNedas/routorio-old/internal/observerproto"
	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/fusion"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
	"github.com/DeltaNedas/routorio-old/internal/sim/tasks"
)

// World is a single-threaded authoritative simulation of a router grid.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs

	tick atomic.Uint64

	blocks map[grid.Pos]*block
	graph  *fusion.Graph
	queue  *tasks.Queue

	// power is the supply ratio of each network for the current tick.
	power map[fusion.NetworkID]float64
	// awaitingRefresh marks networks with a queued Refresh, so a network
	// that absorbs one inherits the refresh.
	awaitingRefresh map[fusion.NetworkID]bool

	counters Counters

	eventsThisTick []observerproto.TickEvent
	auditsThisTick []AuditEntry

	observers map[string]*observerClient

	inbox         chan CommandEnvelope
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	admin         chan adminSnapshotReq
	stop          chan struct{}

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

type adminSnapshotReq struct {
	Resp chan AdminSnapshotResponse
}

type AdminSnapshotResponse struct {
	Tick uint64
	Err  string
}

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	cfg.applyDefaults()
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: tuning: %w", err)
	}
	for _, kind := range []string{catalogs.KindFusionRouter, catalogs.KindContainer} {
		if _, ok := cats.Blocks.ByKind(kind); !ok {
			return nil, fmt.Errorf("world: palette has no %s block", kind)
		}
	}

	w := &World{
		cfg:             cfg,
		catalogs:        cats,
		blocks:          map[grid.Pos]*block{},
		queue:           tasks.NewQueue(),
		power:           map[fusion.NetworkID]float64{},
		awaitingRefresh: map[fusion.NetworkID]bool{},
		observers:       map[string]*observerClient{},
		inbox:           make(chan CommandEnvelope, cfg.InboxSize),
		observerJoin:    make(chan ObserverJoinRequest, 16),
		observerSub:     make(chan ObserverSubscribeRequest, 16),
		observerLeave:   make(chan string, 16),
		admin:           make(chan adminSnapshotReq, 4),
		stop:            make(chan struct{}),
	}
	w.graph = w.newGraph()
	return w, nil
}

func (w *World) newGraph() *fusion.Graph {
	return fusion.New(w.cfg.Tuning.Fusion, fusion.Hooks{
		Emitted:   w.onEmitted,
		Delivered: w.onDelivered,
		Merged:    w.onMerged,
	})
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- CommandEnvelope { return w.inbox }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig {
	if w == nil {
		return WorldConfig{}
	}
	return w.cfg
}

func (w *World) BlockPalette() []string {
	if w == nil || w.catalogs == nil {
		return nil
	}
	p := w.catalogs.Blocks.Palette
	out := make([]string, len(p))
	copy(out, p)
	return out
}

func (w *World) Catalogs() *catalogs.Catalogs { return w.catalogs }

// RequestSnapshot asks the world loop to export a snapshot to the sink at the
// end of the next tick.
func (w *World) RequestSnapshot(ctx context.Context) (AdminSnapshotResponse, error) {
	req := adminSnapshotReq{Resp: make(chan AdminSnapshotResponse, 1)}
	select {
	case w.admin <- req:
	case <-ctx.Done():
		return AdminSnapshotResponse{}, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp, nil
	case <-ctx.Done():
		return AdminSnapshotResponse{}, ctx.Err()
	}
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []CommandEnvelope
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-w.inbox:
			pending = append(pending, env)
		case <-ticker.C:
			nowTick := w.tick.Load()
			w.step(pending)
			w.handleAdminSnapshotRequests(nowTick, pendingAdmin)
			pending = pending[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering as the
// server loop. It returns the tick that was simulated and its digest.
func (w *World) StepOnce(cmds []CommandEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.step(cmds)
	return tick, digest
}

func (w *World) step(cmds []CommandEnvelope) string {
	started := time.Now()
	nowTick := w.tick.Load()
	w.eventsThisTick = w.eventsThisTick[:0]
	w.auditsThisTick = w.auditsThisTick[:0]

	// Commands apply in inbox order.
	recorded := make([]RecordedCommand, 0, len(cmds))
	for _, env := range cmds {
		recorded = append(recorded, RecordedCommand{Actor: env.Actor, Cmd: env.Cmd})
		ack := w.applyCommand(nowTick, env.Actor, env.Cmd)
		if env.Resp != nil {
			select {
			case env.Resp <- ack:
			default:
			}
		}
	}

	// Routers that lost their network during the last drain start over.
	for _, p := range w.graph.Unnetworked() {
		w.graph.Init(p)
	}

	w.systemFuel()
	w.systemPower()
	meltdowns := w.systemThermal()
	for _, m := range meltdowns {
		w.handleMeltdown(nowTick, m)
	}
	w.systemDrain()
	w.drainTasks(nowTick)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Commands: recorded, Digest: digest})
	}

	w.stepObservers(nowTick)

	if w.snapshotSink != nil && nowTick != 0 && w.cfg.Tuning.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.Tuning.SnapshotEveryTicks) == 0 {
			w.sendSnapshot(nowTick)
		}
	}

	w.tick.Add(1)
	w.storeMetrics(nowTick+1, started)
	return digest
}

func (w *World) sendSnapshot(nowTick uint64) bool {
	snap := w.ExportSnapshot(nowTick)
	select {
	case w.snapshotSink <- snap:
		return true
	default:
		// Sink is backed up.
		return false
	}
}

func (w *World) handleAdminSnapshotRequests(nowTick uint64, reqs []adminSnapshotReq) {
	for _, req := range reqs {
		resp := AdminSnapshotResponse{Tick: nowTick}
		switch {
		case w.snapshotSink == nil:
			resp.Err = "snapshot sink not configured"
		case !w.sendSnapshot(nowTick):
			resp.Err = "snapshot sink busy"
		}
		req.Resp <- resp
	}
}

func (w *World) systemThermal() []*fusion.Meltdown {
	delta := w.cfg.Tuning.DeltaPerTick
	explosions := w.cfg.Tuning.Rules.ReactorExplosions
	var out []*fusion.Meltdown
	for _, p := range w.graph.Positions() {
		n := w.graph.Node(p)
		res := w.graph.Step(p, w.power[n.Network()], delta, explosions)
		if res.Meltdown != nil {
			out = append(out, res.Meltdown)
		}
	}
	return out
}

func (w *World) systemDrain() {
	for _, p := range grid.SortedKeys(w.blocks) {
		b := w.blocks[p]
		if b.def.DrainPerTick <= 0 || b.items == 0 {
			continue
		}
		b.items -= min(b.items, b.def.DrainPerTick)
	}
}

func (w *World) drainTasks(nowTick uint64) {
	w.queue.Drain(func(t tasks.Task) {
		id := fusion.NetworkID(t.Network)
		switch t.Kind {
		case tasks.KindRefresh:
			delete(w.awaitingRefresh, id)
			if w.graph.Network(id) == nil {
				return
			}
			w.graph.Refresh(id)
			// Value is the surviving member count; 0 means the network is gone.
			members := 0
			if net := w.graph.Network(id); net != nil {
				members = net.Len()
			}
			w.audit(AuditEntry{
				Tick:    nowTick,
				Actor:   "WORLD",
				Action:  AuditNetworkRefresh,
				Pos:     t.Pos.ToArray(),
				Network: t.Network,
				Value:   float64(members),
			})
		case tasks.KindRebuildOutputs:
			w.graph.RebuildOutputs(id)
		}
	})
}

func (w *World) postRefresh(nowTick uint64, id fusion.NetworkID, at grid.Pos) {
	if id == 0 {
		return
	}
	w.awaitingRefresh[id] = true
	w.queue.Post(tasks.Task{Kind: tasks.KindRefresh, Network: uint64(id), Pos: at, PostedTick: nowTick})
}

func (w *World) postRebuildOutputs(id fusion.NetworkID) {
	if id == 0 {
		return
	}
	w.queue.Post(tasks.Task{Kind: tasks.KindRebuildOutputs, Network: uint64(id), PostedTick: w.tick.Load()})
}

func (w *World) onEmitted(at grid.Pos, _ string) {
	w.counters.Emitted++
	w.event(observerproto.TickEvent{Type: observerproto.EventEmit, Pos: at.ToArray()})
}

func (w *World) onDelivered(_, from, to grid.Pos, _ string) {
	w.counters.Delivered++
	w.event(observerproto.TickEvent{Type: observerproto.EventDeliver, Pos: from.ToArray(), To: []int{to.X, to.Y}})
}

func (w *World) onMerged(into, from fusion.NetworkID) {
	if w.awaitingRefresh[from] {
		delete(w.awaitingRefresh, from)
		w.postRefresh(w.tick.Load(), into, grid.Pos{})
	}
	var at grid.Pos
	if net := w.graph.Network(into); net != nil && net.Len() > 0 {
		at = net.Members()[0]
	}
	w.event(observerproto.TickEvent{Type: observerproto.EventMerge, Pos: at.ToArray(), Network: uint64(into), Value: float64(from)})
	w.audit(AuditEntry{
		Tick:    w.tick.Load(),
		Actor:   "WORLD",
		Action:  AuditNetworkMerge,
		Pos:     at.ToArray(),
		Network: uint64(into),
		Value:   float64(from),
	})
}

func (w *World) event(e observerproto.TickEvent) {
	if len(w.observers) > 0 {
		w.eventsThisTick = append(w.eventsThisTick, e)
	}
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger != nil {
		_ = w.auditLogger.WriteAudit(e)
	}
	if len(w.observers) > 0 {
		w.auditsThisTick = append(w.auditsThisTick, e)
	}
}

func (w *World) Counters() Counters { return w.counters }

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
