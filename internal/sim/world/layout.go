package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DeltaNedas/routorio-old/internal/protocol"
	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

// Layout is an initial build, applied to a fresh world before it starts.
type Layout struct {
	Blocks []LayoutBlock `yaml:"blocks"`
	Fuel   []LayoutFuel  `yaml:"fuel"`
}

// LayoutBlock places Block at At, or on every tile of the rectangle From..To.
type LayoutBlock struct {
	Block string  `yaml:"block"`
	At    *[2]int `yaml:"at"`
	From  *[2]int `yaml:"from"`
	To    *[2]int `yaml:"to"`
}

type LayoutFuel struct {
	At     [2]int  `yaml:"at"`
	Amount float64 `yaml:"amount"`
}

func LoadLayout(path string) (Layout, error) {
	var l Layout
	raw, err := os.ReadFile(path)
	if err != nil {
		return l, err
	}
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return l, fmt.Errorf("layout.yaml: %w", err)
	}
	return l, nil
}

func (lb LayoutBlock) positions() ([]grid.Pos, error) {
	switch {
	case lb.At != nil && lb.From == nil && lb.To == nil:
		return []grid.Pos{grid.PosFromArray(*lb.At)}, nil
	case lb.At == nil && lb.From != nil && lb.To != nil:
		a, b := grid.PosFromArray(*lb.From), grid.PosFromArray(*lb.To)
		var out []grid.Pos
		for y := min(a.Y, b.Y); y <= max(a.Y, b.Y); y++ {
			for x := min(a.X, b.X); x <= max(a.X, b.X); x++ {
				out = append(out, grid.Pos{X: x, Y: y})
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: need either at or from/to", lb.Block)
	}
}

// ApplyLayout builds l through the same code paths as PLACE and FUEL
// commands and then settles the deferred queue. It stops at the first
// rejected entry.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ApplyLayout(l Layout) error {
	nowTick := w.tick.Load()
	for i, lb := range l.Blocks {
		ps, err := lb.positions()
		if err != nil {
			return fmt.Errorf("layout block %d: %w", i, err)
		}
		for _, p := range ps {
			if !w.inBounds(p) {
				return fmt.Errorf("layout block %d: %v out of bounds", i, p.ToArray())
			}
			if code, msg := w.cmdPlace(nowTick, "LAYOUT", p, lb.Block); code != "" {
				return fmt.Errorf("layout block %d at %v: %s: %s", i, p.ToArray(), code, msg)
			}
		}
	}
	for i, f := range l.Fuel {
		p := grid.PosFromArray(f.At)
		if code, msg := w.cmdFuel(nowTick, "LAYOUT", p, f.Amount); code != "" && code != protocol.ErrConflict {
			return fmt.Errorf("layout fuel %d at %v: %s: %s", i, f.At, code, msg)
		}
	}
	w.drainTasks(nowTick)
	return nil
}
