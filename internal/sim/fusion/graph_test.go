package fusion

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
)

// sink is a consumer with a fixed capacity; capacity < 0 means unlimited.
type sink struct {
	capacity int
	got      int
	from     []grid.Pos
}

func (s *sink) CanAccept(grid.Pos, string) bool { return s.capacity < 0 || s.got < s.capacity }

func (s *sink) Accept(from grid.Pos, _ string) error {
	if !s.CanAccept(from, Neutron) {
		return ErrRejected
	}
	s.got++
	s.from = append(s.from, from)
	return nil
}

func testConfig() tuning.Fusion {
	cfg := tuning.Defaults().Fusion
	cfg.WarmdownRate = 0
	return cfg
}

func pos(x, y int) grid.Pos { return grid.Pos{X: x, Y: y} }

func placeAll(g *Graph, ps ...grid.Pos) {
	for _, p := range ps {
		g.Place(p)
	}
}

func sortedMembers(net *Network) []grid.Pos {
	ms := net.Members()
	grid.SortPositions(ms)
	return ms
}

// attach gives p one output per sink, on the free sides of p in direction order.
func attach(t *testing.T, g *Graph, p grid.Pos, sinks ...*sink) NetworkID {
	t.Helper()
	var outs []Output
	i := 0
	for _, d := range grid.Dirs {
		if i == len(sinks) {
			break
		}
		q := p.Nearby(d)
		if g.Node(q) != nil {
			continue
		}
		outs = append(outs, Output{Pos: q, Consumer: sinks[i]})
		i++
	}
	require.Equal(t, len(sinks), len(outs), "not enough free sides around %v", p)
	return g.SetOutputs(p, outs, 0)
}

var shapes = map[string][]grid.Pos{
	"line":   {pos(0, 0), pos(1, 0), pos(2, 0), pos(3, 0), pos(4, 0)},
	"square": {pos(0, 0), pos(1, 0), pos(0, 1), pos(1, 1)},
	"ring": {
		pos(0, 0), pos(1, 0), pos(2, 0),
		pos(0, 1), pos(2, 1),
		pos(0, 2), pos(1, 2), pos(2, 2),
	},
	"comb": {pos(0, 0), pos(1, 0), pos(2, 0), pos(0, 1), pos(2, 1), pos(0, 2), pos(2, 2), pos(2, 3)},
}

func permutations(ps []grid.Pos) [][]grid.Pos {
	// Forward, reverse and an interleaved order are enough to hit merges from
	// both sides and in the middle.
	fwd := append([]grid.Pos(nil), ps...)
	rev := make([]grid.Pos, len(ps))
	for i, p := range ps {
		rev[len(ps)-1-i] = p
	}
	var mid []grid.Pos
	for i := 0; i < len(ps); i += 2 {
		mid = append(mid, ps[i])
	}
	for i := 1; i < len(ps); i += 2 {
		mid = append(mid, ps[i])
	}
	return [][]grid.Pos{fwd, rev, mid}
}

func TestPlace_AnyOrderYieldsOneComponent(t *testing.T) {
	for name, shape := range shapes {
		for i, order := range permutations(shape) {
			g := New(testConfig(), Hooks{})
			placeAll(g, order...)

			require.Len(t, g.NetworkIDs(), 1, "%s order %d", name, i)
			net := g.Network(g.NetworkIDs()[0])
			want := append([]grid.Pos(nil), shape...)
			grid.SortPositions(want)
			require.Equal(t, want, sortedMembers(net), "%s order %d", name, i)
			for _, p := range shape {
				require.Equal(t, net.ID, g.Node(p).Network())
			}
		}
	}
}

func TestRefresh_SingleRebuildFromAnyMember(t *testing.T) {
	for name, shape := range shapes {
		for _, root := range shape {
			g := New(testConfig(), Hooks{})
			ids := map[grid.Pos]NetworkID{}
			for _, p := range shape {
				ids[p] = g.Restore(p, RestoreState{})
			}
			require.Len(t, g.NetworkIDs(), len(shape))

			g.Refresh(ids[root])

			require.Len(t, g.NetworkIDs(), 1, "%s root %v", name, root)
			net := g.Network(ids[root])
			require.NotNil(t, net)
			require.Equal(t, len(shape), net.Len())
			require.Equal(t, root, net.Members()[0], "root is discovered first")
		}
	}
}

func TestRebuild_ClaimsWholeComponent(t *testing.T) {
	for name, shape := range shapes {
		root := shape[len(shape)-1]
		g := New(testConfig(), Hooks{})
		ids := map[grid.Pos]NetworkID{}
		for _, p := range shape {
			ids[p] = g.Restore(p, RestoreState{})
		}
		fresh := g.allocNetwork()

		g.Rebuild(fresh.ID, root)

		require.Equal(t, []NetworkID{fresh.ID}, g.NetworkIDs(), name)
		require.Equal(t, root, fresh.Members()[0], "%s: root is added first", name)
		want := append([]grid.Pos(nil), shape...)
		grid.SortPositions(want)
		require.Equal(t, want, sortedMembers(fresh), name)
		for _, p := range shape {
			require.Equal(t, fresh.ID, g.Node(p).Network(), "%s %v", name, p)
		}
	}

	g := New(testConfig(), Hooks{})
	g.Rebuild(42, pos(0, 0)) // unknown network is ignored
	require.Empty(t, g.NetworkIDs())
}

func TestPlace_SeparateComponentsStaySeparate(t *testing.T) {
	g := New(testConfig(), Hooks{})
	placeAll(g, pos(0, 0), pos(1, 0), pos(5, 5), pos(5, 6))
	require.Len(t, g.NetworkIDs(), 2)
	require.NotEqual(t, g.Node(pos(0, 0)).Network(), g.Node(pos(5, 5)).Network())
	// Diagonal contact does not connect.
	g.Place(pos(2, 1))
	require.Len(t, g.NetworkIDs(), 3)
}

func TestMerge_AveragesWarmupUnweighted(t *testing.T) {
	var merged [][2]NetworkID
	g := New(testConfig(), Hooks{Merged: func(into, from NetworkID) {
		merged = append(merged, [2]NetworkID{into, from})
	}})
	placeAll(g, pos(0, 0), pos(1, 0), pos(2, 0))
	big := g.NetworkOf(pos(0, 0))
	big.Warmup = 0.8
	merged = nil

	small := g.Restore(pos(3, 0), RestoreState{Warmup: 0.2})
	g.Refresh(small)

	require.Len(t, g.NetworkIDs(), 1)
	net := g.Network(small)
	require.Equal(t, 4, net.Len())
	require.InDelta(t, 0.5, net.Warmup, 1e-12)
	require.Equal(t, [][2]NetworkID{{small, big.ID}}, merged)
	require.Nil(t, g.Network(big.ID))
}

func TestPlace_BridgeMergesBothSides(t *testing.T) {
	g := New(testConfig(), Hooks{})
	placeAll(g, pos(0, 0), pos(2, 0))
	g.NetworkOf(pos(0, 0)).Warmup = 0.8
	g.NetworkOf(pos(2, 0)).Warmup = 0.4

	g.Place(pos(1, 0))

	require.Len(t, g.NetworkIDs(), 1)
	// The bridge starts cold: merges right first ((0+0.4)/2), then left.
	require.InDelta(t, (0.2+0.8)/2, g.Warmup(pos(1, 0)), 1e-12)
}

func TestRebuildOutputs_SizeAndCircular(t *testing.T) {
	g := New(testConfig(), Hooks{})
	placeAll(g, pos(0, 0), pos(1, 0), pos(2, 0))
	id := attach(t, g, pos(0, 0), &sink{capacity: -1}, &sink{capacity: -1})
	attach(t, g, pos(2, 0), &sink{capacity: -1}, &sink{capacity: -1}, &sink{capacity: -1})
	g.RebuildOutputs(id)

	net := g.Network(id)
	require.Equal(t, 5, net.EdgeCount())
	require.Equal(t, 0, net.Cursor())

	i := net.Cursor()
	for k := 0; k < net.EdgeCount(); k++ {
		i = net.Next(i)
	}
	require.Equal(t, net.Cursor(), i)

	// Every member got a distinct sequence index.
	seen := map[int]bool{}
	for _, p := range net.Members() {
		seen[g.Node(p).Index] = true
	}
	require.Len(t, seen, 3)
}

func TestRebuildOutputs_EmptyList(t *testing.T) {
	g := New(testConfig(), Hooks{})
	placeAll(g, pos(0, 0), pos(1, 0))
	net := g.NetworkOf(pos(0, 0))
	require.Zero(t, net.EdgeCount())
	require.Equal(t, -1, net.Cursor())
	require.Nil(t, net.Edges())
	require.False(t, g.Dispatch(pos(0, 0)))
}

func TestRebuildOutputs_Idempotent(t *testing.T) {
	g := New(testConfig(), Hooks{})
	placeAll(g, shapes["comb"]...)
	for i, p := range shapes["comb"] {
		if i%2 == 0 {
			attach(t, g, p, &sink{capacity: -1})
		}
	}
	id := g.Node(pos(0, 0)).Network()

	g.RebuildOutputs(id)
	first := g.Network(id).Edges()
	g.RebuildOutputs(id)
	second := g.Network(id).Edges()

	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second, cmpopts.IgnoreUnexported(Edge{})); diff != "" {
		t.Fatalf("edge order changed (-first +second):\n%s", diff)
	}
}

func TestRemove_NonCutVertex(t *testing.T) {
	g := New(testConfig(), Hooks{})
	placeAll(g, shapes["square"]...)
	for _, p := range shapes["square"] {
		attach(t, g, p, &sink{capacity: -1}, &sink{capacity: -1})
	}
	id := g.Node(pos(0, 0)).Network()
	g.RebuildOutputs(id)
	before := g.Network(id)
	members, edges := before.Len(), before.EdgeCount()

	victim := pos(1, 1)
	lost := len(g.Node(victim).Outputs())
	require.Equal(t, id, g.Remove(victim))
	g.Refresh(id)

	net := g.Network(id)
	require.Equal(t, members-1, net.Len())
	require.Equal(t, edges-lost, net.EdgeCount())
	require.False(t, net.Contains(victim))
	require.Empty(t, g.Unnetworked())
}

func TestRemove_CutVertexSplitsLazily(t *testing.T) {
	g := New(testConfig(), Hooks{})
	a, b, c := pos(0, 0), pos(1, 0), pos(2, 0)
	placeAll(g, a, b, c)
	id := g.Node(a).Network()
	g.Network(id).Warmup = 0.6

	g.Refresh(g.Remove(b))

	net := g.Network(id)
	require.Equal(t, 1, net.Len())
	root := net.Members()[0]
	require.Contains(t, []grid.Pos{a, c}, root)
	require.InDelta(t, 0.6, net.Warmup, 1e-12, "the surviving network keeps its warmup")

	orphan := a
	if root == a {
		orphan = c
	}
	require.Equal(t, []grid.Pos{orphan}, g.Unnetworked())
	require.Zero(t, g.Node(orphan).Network())

	require.True(t, g.Init(orphan))
	fresh := g.NetworkOf(orphan)
	require.NotEqual(t, id, fresh.ID)
	require.Equal(t, []grid.Pos{orphan}, fresh.Members())
	require.Zero(t, fresh.Warmup)
	require.False(t, g.Init(orphan), "second init is a no-op")
}

func TestRefresh_LastMemberDiscardsNetwork(t *testing.T) {
	g := New(testConfig(), Hooks{})
	g.Place(pos(0, 0))
	id := g.Remove(pos(0, 0))
	require.NotNil(t, g.Network(id))
	g.Refresh(id)
	require.Nil(t, g.Network(id))
	require.Empty(t, g.NetworkIDs())

	// Refreshing an unknown network is harmless.
	g.Refresh(id)
}

func TestRefresh_AfterMergeIsNoop(t *testing.T) {
	g := New(testConfig(), Hooks{})
	placeAll(g, pos(0, 0), pos(1, 0))
	old := g.Node(pos(0, 0)).Network()
	g.Remove(pos(1, 0))
	// A new router lands on the hole before the deferred refresh runs.
	g.Place(pos(1, 0))
	require.Nil(t, g.Network(old))
	g.Refresh(old)
	require.Len(t, g.NetworkIDs(), 1)
	require.Equal(t, 2, g.NetworkOf(pos(1, 0)).Len())
}
