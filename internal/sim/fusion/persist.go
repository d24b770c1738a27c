package fusion

import (
	"fmt"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

// NodeState is the full state of a router, including its network handle.
type NodeState struct {
	Pos       grid.Pos
	Network   NetworkID
	Heat      float64
	Fuel      float64
	FuseTime  float64
	Slot      int
	BlendBits uint16
}

// NetworkState is a network as of the last rebuild. Members keep discovery
// order so the dispatch list comes back in the same order.
type NetworkState struct {
	ID      NetworkID
	Warmup  float64
	Members []grid.Pos
	Cursor  int
}

// Export dumps every router and network. Routers come out in row-major order,
// networks by id.
func (g *Graph) Export() ([]NodeState, []NetworkState) {
	nodes := make([]NodeState, 0, len(g.nodes))
	for _, p := range g.Positions() {
		n := g.nodes[p]
		nodes = append(nodes, NodeState{
			Pos:       p,
			Network:   n.network,
			Heat:      n.Heat,
			Fuel:      n.Fuel,
			FuseTime:  n.FuseTime,
			Slot:      n.Slot,
			BlendBits: n.BlendBits,
		})
	}
	nets := make([]NetworkState, 0, len(g.networks))
	for _, id := range g.NetworkIDs() {
		net := g.networks[id]
		st := NetworkState{ID: id, Warmup: net.Warmup, Cursor: net.cursor}
		for _, p := range net.members {
			if n := g.nodes[p]; n != nil && n.network == id {
				st.Members = append(st.Members, p)
			}
		}
		nets = append(nets, st)
	}
	return nodes, nets
}

// Load replaces the graph with exported state. Outputs are not part of the
// state: the caller sets them again, rebuilds each dispatch list and then
// restores the cursors with SetCursor.
func (g *Graph) Load(nodes []NodeState, nets []NetworkState, nextID NetworkID) error {
	g.nodes = make(map[grid.Pos]*Node, len(nodes))
	g.networks = make(map[NetworkID]*Network, len(nets))
	g.nextID = 0

	for _, st := range nets {
		if st.ID == 0 {
			return fmt.Errorf("network with zero id")
		}
		if _, dup := g.networks[st.ID]; dup {
			return fmt.Errorf("duplicate network %d", st.ID)
		}
		net := newNetwork(st.ID)
		net.Warmup = clamp01(st.Warmup)
		for _, p := range st.Members {
			net.add(p)
		}
		g.networks[st.ID] = net
		if st.ID > g.nextID {
			g.nextID = st.ID
		}
	}
	for _, st := range nodes {
		if _, dup := g.nodes[st.Pos]; dup {
			return fmt.Errorf("duplicate router at %v", st.Pos)
		}
		n := &Node{
			Pos:       st.Pos,
			Heat:      clamp01(st.Heat),
			Fuel:      st.Fuel,
			FuseTime:  st.FuseTime,
			Slot:      st.Slot,
			BlendBits: st.BlendBits,
		}
		if net := g.networks[st.Network]; net != nil && net.Contains(st.Pos) {
			n.network = st.Network
		}
		g.nodes[st.Pos] = n
	}
	g.SetNextNetworkID(nextID)
	return nil
}

// SetCursor restores a dispatch cursor saved by Export. It fails when c does
// not fit the current dispatch list.
func (g *Graph) SetCursor(id NetworkID, c int) error {
	net := g.networks[id]
	if net == nil {
		return fmt.Errorf("unknown network %d", id)
	}
	if len(net.edges) == 0 {
		if c != -1 {
			return fmt.Errorf("network %d: cursor %d on empty list", id, c)
		}
		return nil
	}
	if c < 0 || c >= len(net.edges) {
		return fmt.Errorf("network %d: cursor %d out of range", id, c)
	}
	net.cursor = c
	return nil
}
