package fusion

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

func unlimited(n int) []*sink {
	out := make([]*sink, n)
	for i := range out {
		out[i] = &sink{capacity: -1}
	}
	return out
}

func TestDispatch_RoundRobinAcrossNetwork(t *testing.T) {
	g := New(testConfig(), Hooks{})
	line := []grid.Pos{pos(0, 0), pos(1, 0), pos(2, 0), pos(3, 0)}
	placeAll(g, line...)
	sinks := unlimited(len(line))
	var id NetworkID
	for i, p := range line {
		id = attach(t, g, p, sinks[i])
	}
	g.RebuildOutputs(id)

	// Only one router ever produces; every output still gets its turn.
	producer := line[0]
	for k := 1; k <= 10; k++ {
		g.Node(producer).Slot = 1
		require.True(t, g.Dispatch(producer))

		lo, hi := k, 0
		for _, s := range sinks {
			lo, hi = min(lo, s.got), max(hi, s.got)
		}
		require.LessOrEqual(t, hi-lo, 1, "after %d dispatches", k)
	}
	for _, s := range sinks {
		require.Contains(t, []int{2, 3}, s.got)
	}
}

func TestDispatch_EveryRouterEveryTick(t *testing.T) {
	g := New(testConfig(), Hooks{})
	square := shapes["square"]
	placeAll(g, square...)
	sinks := unlimited(len(square))
	var id NetworkID
	for i, p := range square {
		id = attach(t, g, p, sinks[i])
	}
	g.RebuildOutputs(id)

	const ticks = 25
	for tick := 0; tick < ticks; tick++ {
		for _, p := range g.Positions() {
			g.Node(p).Slot = 1
			require.True(t, g.Dispatch(p))
		}
	}
	for _, s := range sinks {
		require.Equal(t, ticks, s.got)
	}
}

func TestDispatch_AllBlockedChangesNothing(t *testing.T) {
	var delivered int
	g := New(testConfig(), Hooks{Delivered: func(_, _, _ grid.Pos, _ string) { delivered++ }})
	placeAll(g, pos(0, 0), pos(1, 0))
	attach(t, g, pos(0, 0), &sink{}, &sink{})
	id := attach(t, g, pos(1, 0), &sink{})
	g.RebuildOutputs(id)
	net := g.Network(id)
	net.cursor = 2

	g.Node(pos(1, 0)).Slot = 1
	require.False(t, g.Dispatch(pos(1, 0)))

	require.Equal(t, 2, net.Cursor())
	require.Equal(t, 1, g.Node(pos(1, 0)).Slot)
	require.Zero(t, delivered)
}

func TestDispatch_SkipsFullConsumers(t *testing.T) {
	g := New(testConfig(), Hooks{})
	g.Place(pos(0, 0))
	a, full, c := &sink{capacity: -1}, &sink{capacity: 0}, &sink{capacity: -1}
	id := attach(t, g, pos(0, 0), a, full, c)
	g.RebuildOutputs(id)
	net := g.Network(id)
	n := g.Node(pos(0, 0))

	n.Slot = 1
	require.True(t, g.Dispatch(pos(0, 0)))
	require.Equal(t, 1, a.got)
	require.Equal(t, 1, net.Cursor())

	n.Slot = 1
	require.True(t, g.Dispatch(pos(0, 0)))
	require.Equal(t, 1, c.got)
	require.Equal(t, 0, net.Cursor(), "cursor wraps past the last edge")

	n.Slot = 1
	require.True(t, g.Dispatch(pos(0, 0)))
	require.Equal(t, 2, a.got)
	require.Zero(t, full.got)
}

func TestDispatch_RejectedAcceptTriesNext(t *testing.T) {
	g := New(testConfig(), Hooks{})
	g.Place(pos(0, 0))
	fickle := &fickleSink{}
	s := &sink{capacity: -1}
	var outs []Output
	outs = append(outs, Output{Pos: pos(1, 0), Consumer: fickle}, Output{Pos: pos(0, 1), Consumer: s})
	id := g.SetOutputs(pos(0, 0), outs, 0)
	g.RebuildOutputs(id)

	g.Node(pos(0, 0)).Slot = 1
	require.True(t, g.Dispatch(pos(0, 0)))
	require.Equal(t, 1, s.got)
	require.Equal(t, 1, fickle.asked)
}

type fickleSink struct{ asked int }

func (f *fickleSink) CanAccept(grid.Pos, string) bool { return true }

func (f *fickleSink) Accept(grid.Pos, string) error {
	f.asked++
	return ErrRejected
}

func TestDispatch_LoopWithSingleConsumer(t *testing.T) {
	type delivery struct{ caller, from, to grid.Pos }
	var got []delivery
	g := New(testConfig(), Hooks{Delivered: func(caller, from, to grid.Pos, item string) {
		require.Equal(t, Neutron, item)
		got = append(got, delivery{caller, from, to})
	}})
	square := shapes["square"]
	placeAll(g, square...)
	target := &sink{capacity: -1}
	second := square[1]
	id := attach(t, g, second, target)
	g.RebuildOutputs(id)
	require.Equal(t, 1, g.Network(id).EdgeCount())

	for _, p := range square {
		g.Node(p).Slot = 1
		require.True(t, g.Dispatch(p), "dispatch from %v", p)
		require.Zero(t, g.Node(p).Slot)
	}

	require.Equal(t, len(square), target.got)
	for i, d := range got {
		require.Equal(t, square[i], d.caller)
		require.Equal(t, second, d.from)
		require.Equal(t, second.Nearby(grid.Right), d.to)
	}
}

func TestDispatch_NothingToSend(t *testing.T) {
	g := New(testConfig(), Hooks{})
	g.Place(pos(0, 0))
	id := attach(t, g, pos(0, 0), &sink{capacity: -1})
	g.RebuildOutputs(id)
	require.False(t, g.Dispatch(pos(0, 0)), "empty slot")
	require.False(t, g.Dispatch(pos(9, 9)), "no router")
}
