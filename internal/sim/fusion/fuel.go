package fusion

import (
	"math"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

// AddFuel pours up to amount into the router at p and returns how much fit.
func (g *Graph) AddFuel(p grid.Pos, amount float64) float64 {
	n := g.nodes[p]
	if n == nil || amount <= 0 {
		return 0
	}
	room := g.cfg.FuelCapacity - n.Fuel
	if room <= 0 {
		return 0
	}
	took := math.Min(room, amount)
	n.Fuel += took
	return took
}

// ShareFuel levels fuel between adjacent routers. Routers are visited in
// row-major order and each gives at most FuelShareRate*delta, and never more
// than half the difference, to every neighbor holding less.
func (g *Graph) ShareFuel(delta float64) {
	limit := g.cfg.FuelShareRate * delta
	if limit <= 0 {
		return
	}
	for _, p := range g.Positions() {
		n := g.nodes[p]
		for _, d := range grid.Dirs {
			o := g.nodes[p.Nearby(d)]
			if o == nil || o.Fuel >= n.Fuel {
				continue
			}
			flow := math.Min(limit, (n.Fuel-o.Fuel)/2)
			n.Fuel -= flow
			o.Fuel += flow
		}
	}
}
