// Package tasks holds work the world defers to the end of a tick.
package tasks

import "github.com/DeltaNedas/routorio-old/internal/sim/grid"

type Kind string

const (
	// KindRefresh re-validates a network after one of its members was removed.
	KindRefresh Kind = "REFRESH"
	// KindRebuildOutputs recomputes a network's dispatch list.
	KindRebuildOutputs Kind = "REBUILD_OUTPUTS"
)

type Task struct {
	Kind    Kind
	Network uint64
	// Pos is the removed router that triggered a refresh, for audits.
	Pos grid.Pos

	PostedTick uint64
}

func (t Task) key() Task {
	t.Pos = grid.Pos{}
	t.PostedTick = 0
	return t
}

// Queue is a FIFO of deferred tasks. Tasks of the same kind for the same
// network posted before the next drain coalesce into the first one. It is owned by the world goroutine.
type Queue struct {
	pending []Task
	seen    map[Task]struct{}
}

func NewQueue() *Queue {
	return &Queue{seen: map[Task]struct{}{}}
}

// Post enqueues t and reports whether it was new.
func (q *Queue) Post(t Task) bool {
	k := t.key()
	if _, ok := q.seen[k]; ok {
		return false
	}
	q.seen[k] = struct{}{}
	q.pending = append(q.pending, t)
	return true
}

func (q *Queue) Len() int { return len(q.pending) }

// Pending returns a copy of the queued tasks in order.
func (q *Queue) Pending() []Task { return append([]Task(nil), q.pending...) }

// Drain runs every task queued so far, in order. Tasks posted by fn wait for
// the next Drain.
func (q *Queue) Drain(fn func(Task)) int {
	batch := q.pending
	q.pending = nil
	clear(q.seen)
	for _, t := range batch {
		fn(t)
	}
	return len(batch)
}
