package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Routers      int `json:"routers"`
	Networks     int `json:"networks"`
	Blocks       int `json:"blocks"`
	Observers    int `json:"observers"`
	PendingTasks int `json:"pending_tasks"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Emitted   uint64 `json:"emitted"`
	Delivered uint64 `json:"delivered"`
	Meltdowns uint64 `json:"meltdowns"`
	Strikes   uint64 `json:"strikes"`
}

type QueueDepths struct {
	Inbox        int `json:"inbox"`
	ObserverJoin int `json:"observer_join"`
	Admin        int `json:"admin"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func (w *World) storeMetrics(nextTick uint64, started time.Time) {
	w.metrics.Store(WorldMetrics{
		Tick:         nextTick,
		Routers:      len(w.graph.Positions()),
		Networks:     len(w.graph.NetworkIDs()),
		Blocks:       len(w.blocks),
		Observers:    len(w.observers),
		PendingTasks: w.queue.Len(),
		QueueDepths: QueueDepths{
			Inbox:        len(w.inbox),
			ObserverJoin: len(w.observerJoin),
			Admin:        len(w.admin),
		},
		StepMS:    float64(time.Since(started).Microseconds()) / 1000,
		Emitted:   w.counters.Emitted,
		Delivered: w.counters.Delivered,
		Meltdowns: w.counters.Meltdowns,
		Strikes:   w.counters.Strikes,
	})
}
