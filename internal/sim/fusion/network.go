package fusion

import "github.com/DeltaNedas/routorio-old/internal/sim/grid"

// Edge is one (router, consumer) pair in a network's dispatch list.
type Edge struct {
	From grid.Pos
	To   grid.Pos

	consumer Consumer
	next     int
}

// Network is a connected set of routers as of its last rebuild.
type Network struct {
	ID     NetworkID
	Warmup float64

	// members keeps discovery order; index is the membership set.
	members []grid.Pos
	index   map[grid.Pos]struct{}

	edges  []Edge
	cursor int
}

func newNetwork(id NetworkID) *Network {
	return &Network{ID: id, index: map[grid.Pos]struct{}{}, cursor: -1}
}

func (n *Network) add(p grid.Pos) bool {
	if _, ok := n.index[p]; ok {
		return false
	}
	n.index[p] = struct{}{}
	n.members = append(n.members, p)
	return true
}

func (n *Network) clear() {
	n.members = n.members[:0]
	clear(n.index)
}

func (n *Network) Contains(p grid.Pos) bool {
	_, ok := n.index[p]
	return ok
}

// Members returns the member positions in discovery order.
func (n *Network) Members() []grid.Pos {
	return append([]grid.Pos(nil), n.members...)
}

func (n *Network) Len() int { return len(n.members) }

// EdgeCount is the size of the dispatch list.
func (n *Network) EdgeCount() int { return len(n.edges) }

// Cursor is the index of the next edge a dispatch will try, or -1.
func (n *Network) Cursor() int { return n.cursor }

// Next returns the successor of edge i in the circular list.
func (n *Network) Next(i int) int { return n.edges[i].next }

func (n *Network) Edge(i int) Edge { return n.edges[i] }

// Edges returns the dispatch list starting from its first edge.
func (n *Network) Edges() []Edge {
	if len(n.edges) == 0 {
		return nil
	}
	out := make([]Edge, 0, len(n.edges))
	for i := 0; ; {
		out = append(out, n.edges[i])
		i = n.edges[i].next
		if i == 0 {
			break
		}
	}
	return out
}
