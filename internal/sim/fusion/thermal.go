package fusion

import (
	"math"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

// Meltdown describes a router that blew up while blocked.
type Meltdown struct {
	Pos     grid.Pos
	Network NetworkID
	Heat    float64
	Radius  int
	Damage  float64
	// Blast is set when the router was hot enough to explode.
	Blast bool
	// Ignitions are the tiles that receive a secondary shocked strike; empty
	// when the router was too cold or explosions are disabled.
	Ignitions []grid.Pos
}

// StepResult reports what one thermal step did.
type StepResult struct {
	Emitted   bool
	Delivered bool
	Meltdown  *Meltdown
}

// Step advances the router at p by delta. power is the external power ratio in
// [0,1]. explosions enables the blast ignition scatter on meltdown. Routers
// without a network are skipped until their initialization check runs.
func (g *Graph) Step(p grid.Pos, power, delta float64, explosions bool) StepResult {
	var res StepResult
	n := g.nodes[p]
	if n == nil || n.dead {
		return res
	}
	net := g.networks[n.network]
	if net == nil {
		return res
	}
	cfg := g.cfg
	n.Power = power

	if n.Heat < cfg.FuseHeat {
		net.Warmup = math.Max(net.Warmup+delta*cfg.WarmdownRate, 0)
	}

	// Running dry cools fast, whatever else is going on.
	n.Heat -= delta * math.Pow(1-g.FuelFraction(n), 3)

	n.valid = net.Warmup > 0.999 && n.Fuel > cfg.FuelLowerBound && power > 0.9
	rate := cfg.CoolRate
	if n.valid {
		rate = cfg.HeatRate
	}
	n.Heat = clamp01(n.Heat + delta*rate)

	if n.Heat >= cfg.FuseHeat {
		n.FuseTime += delta * n.Heat
		if n.Slot == 0 {
			if n.FuseTime >= cfg.ProductionTime {
				n.Slot = 1
				n.FuseTime = 0
				res.Emitted = true
				if g.hooks.Emitted != nil {
					g.hooks.Emitted(p, Neutron)
				}
			}
		} else if n.FuseTime >= cfg.MeltdownTime {
			n.dead = true
			res.Meltdown = g.meltdown(n, explosions)
			return res
		}
	}

	if n.Slot > 0 {
		res.Delivered = g.Dispatch(p)
	}
	return res
}

func (g *Graph) meltdown(n *Node, explosions bool) *Meltdown {
	m := &Meltdown{
		Pos:     n.Pos,
		Network: n.network,
		Heat:    n.Heat,
		Radius:  g.cfg.ExplosionRadius,
		Damage:  g.cfg.ExplosionDamage * 4,
	}
	if n.Heat < 0.5 || !explosions {
		return m
	}
	m.Blast = true
	// ceil(8*heat) points, 360/(8*heat) degrees apart.
	steps := 8 * n.Heat
	r := float64(g.cfg.IgnitionRadius)
	for i := 0; float64(i) < steps; i++ {
		a := 2 * math.Pi * float64(i) / steps
		m.Ignitions = append(m.Ignitions, grid.Pos{
			X: n.Pos.X + int(math.Round(r*math.Cos(a))),
			Y: n.Pos.Y + int(math.Round(r*math.Sin(a))),
		})
	}
	return m
}

// Strike applies an external hit of the given damage to the router at p and
// returns the damage it actually takes. Shocked hits on a networked router
// warm its network up; once warmup is saturated the rest turns into heat.
// Adjacent magnets shield the router.
func (g *Graph) Strike(p grid.Pos, power, damage float64, shocked bool) float64 {
	n := g.nodes[p]
	if n == nil {
		return damage
	}
	net := g.networks[n.network]
	if net == nil || !shocked {
		return damage
	}
	cfg := g.cfg
	mul := power * g.FuelFraction(n)
	net.Warmup = math.Min(net.Warmup+mul*damage/cfg.StrikeScale, 1)
	if net.Warmup >= 1 {
		// Falls off as the router heats up.
		n.Heat = math.Min(n.Heat+mul*damage/math.Max(n.Heat, cfg.HeatFloor), 1)
	}
	shield := 1 - float64(n.Magnets)/float64(cfg.MagnetSlots)
	return damage * math.Max(shield, 0)
}

func (g *Graph) FuelFraction(n *Node) float64 {
	return clamp01(n.Fuel / g.cfg.FuelCapacity)
}

// State reports the thermal state of the router at p.
func (g *Graph) State(p grid.Pos) State {
	n := g.nodes[p]
	if n == nil {
		return StateMeltdown
	}
	return n.state(g.cfg.FuseHeat)
}

// Warmup is the shared warmup of p's network, 0 when it has none.
func (g *Graph) Warmup(p grid.Pos) float64 {
	if net := g.NetworkOf(p); net != nil {
		return net.Warmup
	}
	return 0
}

// PowerOutput is the power the router at p generates from its heat.
func (g *Graph) PowerOutput(p grid.Pos) float64 {
	n := g.nodes[p]
	if n == nil {
		return 0
	}
	return n.Heat * g.cfg.PowerGeneration
}

// ProductionRate is how many neutrons per delta unit p produces at its
// current heat.
func (g *Graph) ProductionRate(p grid.Pos) float64 {
	n := g.nodes[p]
	if n == nil || n.Heat < g.cfg.FuseHeat {
		return 0
	}
	return n.Heat / g.cfg.ProductionTime
}

// Warning is the escalation level of a fusing router: progress relative to
// ProductionTime. It keeps growing past 1 while the router is blocked.
func (g *Graph) Warning(p grid.Pos) float64 {
	n := g.nodes[p]
	if n == nil || n.Heat < g.cfg.FuseHeat {
		return 0
	}
	return n.FuseTime / g.cfg.ProductionTime
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
