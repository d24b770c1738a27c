package fusion

import (
	"sort"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
)

// Hooks lets the world observe graph activity. Any field may be nil.
type Hooks struct {
	Emitted   func(at grid.Pos, item string)
	Delivered func(caller, from, to grid.Pos, item string)
	Merged    func(into, from NetworkID)
}

// Graph is the arena of routers and networks.
type Graph struct {
	cfg   tuning.Fusion
	hooks Hooks

	nodes    map[grid.Pos]*Node
	networks map[NetworkID]*Network
	nextID   NetworkID
}

func New(cfg tuning.Fusion, hooks Hooks) *Graph {
	return &Graph{
		cfg:      cfg,
		hooks:    hooks,
		nodes:    map[grid.Pos]*Node{},
		networks: map[NetworkID]*Network{},
	}
}

func (g *Graph) Config() tuning.Fusion { return g.cfg }

func (g *Graph) Node(p grid.Pos) *Node { return g.nodes[p] }

func (g *Graph) Network(id NetworkID) *Network { return g.networks[id] }

// NetworkOf returns the network p currently points at, or nil.
func (g *Graph) NetworkOf(p grid.Pos) *Network {
	n := g.nodes[p]
	if n == nil || n.network == 0 {
		return nil
	}
	return g.networks[n.network]
}

// Positions returns every router position in row-major order.
func (g *Graph) Positions() []grid.Pos { return grid.SortedKeys(g.nodes) }

func (g *Graph) NetworkIDs() []NetworkID {
	out := make([]NetworkID, 0, len(g.networks))
	for id := range g.networks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NextNetworkID is the handle the next allocated network will get.
func (g *Graph) NextNetworkID() NetworkID { return g.nextID + 1 }

// SetNextNetworkID restores the handle counter after a snapshot import.
func (g *Graph) SetNextNetworkID(id NetworkID) {
	if id > 0 && id-1 > g.nextID {
		g.nextID = id - 1
	}
}

func (g *Graph) allocNetwork() *Network {
	g.nextID++
	net := newNetwork(g.nextID)
	g.networks[net.ID] = net
	return net
}

// Place adds a router at p and runs its initialization check. Placing on an
// occupied position returns the existing node.
func (g *Graph) Place(p grid.Pos) *Node {
	if n := g.nodes[p]; n != nil {
		return n
	}
	n := &Node{Pos: p}
	g.nodes[p] = n
	g.Init(p)
	return n
}

// Init gives an un-networked router a new network and grows it over every
// reachable router, merging any network it touches. It reports whether a
// network was created.
func (g *Graph) Init(p grid.Pos) bool {
	n := g.nodes[p]
	if n == nil || n.network != 0 {
		return false
	}
	net := g.allocNetwork()
	g.Rebuild(net.ID, p)
	g.rebuildOutputs(net)
	return true
}

// Unnetworked lists routers that lost their network and wait for Init.
func (g *Graph) Unnetworked() []grid.Pos {
	var out []grid.Pos
	for p, n := range g.nodes {
		if n.network == 0 {
			out = append(out, p)
		}
	}
	grid.SortPositions(out)
	return out
}

// Rebuild grows network id from root, adding root first if it is not yet a
// member and merging whatever network root belonged to. It leaves the dispatch
// list alone; callers follow with RebuildOutputs.
func (g *Graph) Rebuild(id NetworkID, root grid.Pos) {
	net := g.networks[id]
	if net == nil {
		return
	}
	if n := g.nodes[root]; n != nil && net.add(root) {
		if n.network != 0 && n.network != id {
			g.merge(net, n.network)
		}
		n.network = id
	}
	g.rebuild(net, root)
}

func (g *Graph) rebuild(net *Network, root grid.Pos) {
	for _, d := range grid.Dirs {
		p := root.Nearby(d)
		n := g.nodes[p]
		if n == nil || !net.add(p) {
			continue
		}
		if n.network != 0 && n.network != net.ID {
			g.merge(net, n.network)
		}
		n.network = net.ID
		g.rebuild(net, p)
	}
}

// merge moves every live member of network from into net and averages the two
// warmups without weighting by size.
func (g *Graph) merge(net *Network, from NetworkID) {
	other := g.networks[from]
	if other == nil {
		return
	}
	for _, p := range other.members {
		n := g.nodes[p]
		if n == nil || n.network != from {
			continue
		}
		net.add(p)
		n.network = net.ID
	}
	net.Warmup = (net.Warmup + other.Warmup) / 2
	delete(g.networks, from)
	if g.hooks.Merged != nil {
		g.hooks.Merged(net.ID, from)
	}
}

// RebuildOutputs recomputes the dispatch list of network id.
func (g *Graph) RebuildOutputs(id NetworkID) {
	if net := g.networks[id]; net != nil {
		g.rebuildOutputs(net)
	}
}

func (g *Graph) rebuildOutputs(net *Network) {
	net.edges = net.edges[:0]
	index := 0
	for _, p := range net.members {
		n := g.nodes[p]
		if n == nil || n.network != net.ID {
			continue
		}
		n.Index = index
		index++
		for _, o := range n.outputs {
			net.edges = append(net.edges, Edge{From: p, To: o.Pos, consumer: o.Consumer})
		}
	}
	if len(net.edges) == 0 {
		net.cursor = -1
		return
	}
	for i := range net.edges {
		net.edges[i].next = (i + 1) % len(net.edges)
	}
	net.cursor = 0
}

// Remove deletes the router at p and returns the network that must be
// refreshed once the current tick is over.
func (g *Graph) Remove(p grid.Pos) NetworkID {
	n := g.nodes[p]
	if n == nil {
		return 0
	}
	id := n.network
	n.network = 0
	n.dead = true
	delete(g.nodes, p)
	return id
}

// Refresh re-validates network id after a member was removed. The network is
// rebuilt from its first surviving member; survivors that are no longer
// reachable keep no network and re-initialize on their own later.
func (g *Graph) Refresh(id NetworkID) {
	net := g.networks[id]
	if net == nil {
		return
	}
	var root *Node
	for _, p := range net.members {
		n := g.nodes[p]
		if n == nil || n.network != id {
			continue
		}
		n.network = 0
		if root == nil {
			root = n
		}
	}
	if root == nil {
		delete(g.networks, id)
		return
	}
	net.clear()
	g.Rebuild(id, root.Pos)
	g.rebuildOutputs(net)
}

// SetOutputs replaces the consumers adjacent to p. It returns the network whose
// dispatch list is now stale; the caller schedules RebuildOutputs for it.
func (g *Graph) SetOutputs(p grid.Pos, outputs []Output, blend uint16) NetworkID {
	n := g.nodes[p]
	if n == nil {
		return 0
	}
	n.outputs = outputs
	n.Magnets = 0
	for _, o := range outputs {
		if o.Magnet {
			n.Magnets++
		}
	}
	n.BlendBits = blend
	return n.network
}

// RestoreState is the persisted part of a router.
type RestoreState struct {
	Heat      float64
	Fuel      float64
	FuseTime  float64
	Slot      int
	BlendBits uint16
	Warmup    float64
}

// Restore loads a router into its own single-member network carrying the saved
// warmup. Neighbors are not merged until Refresh runs for the returned network.
func (g *Graph) Restore(p grid.Pos, st RestoreState) NetworkID {
	if g.nodes[p] != nil {
		g.Refresh(g.Remove(p))
	}
	n := &Node{
		Pos:       p,
		Heat:      clamp01(st.Heat),
		Fuel:      st.Fuel,
		FuseTime:  st.FuseTime,
		Slot:      st.Slot,
		BlendBits: st.BlendBits,
	}
	g.nodes[p] = n
	net := g.allocNetwork()
	net.add(p)
	net.Warmup = clamp01(st.Warmup)
	n.network = net.ID
	return net.ID
}
