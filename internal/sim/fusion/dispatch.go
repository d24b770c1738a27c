package fusion

import "github.com/DeltaNedas/routorio-old/internal/sim/grid"

// Dispatch tries to hand the neutron held by the router at p to the next
// consumer in its network's dispatch list. The walk starts at the shared
// cursor and gives up after trying every edge once, leaving all state as it
// was. On success the cursor moves past the edge that was used.
func (g *Graph) Dispatch(p grid.Pos) bool {
	n := g.nodes[p]
	if n == nil || n.Slot == 0 {
		return false
	}
	net := g.networks[n.network]
	if net == nil || len(net.edges) == 0 {
		return false
	}
	c := net.cursor
	for range net.edges {
		e := net.edges[c]
		c = e.next
		if e.consumer == nil || !e.consumer.CanAccept(e.From, Neutron) {
			continue
		}
		if err := e.consumer.Accept(e.From, Neutron); err != nil {
			continue
		}
		net.cursor = c
		n.Slot--
		if g.hooks.Delivered != nil {
			g.hooks.Delivered(p, e.From, e.To, Neutron)
		}
		return true
	}
	return false
}
