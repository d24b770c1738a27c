package grid

import "sort"

// Pos is a tile coordinate on the 2D router grid.
type Pos struct{ X, Y int }

func (p Pos) Add(o Pos) Pos       { return Pos{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Pos) ToArray() [2]int     { return [2]int{p.X, p.Y} }
func PosFromArray(a [2]int) Pos   { return Pos{X: a[0], Y: a[1]} }
func (p Pos) Nearby(d Dir) Pos    { return p.Add(offsets[d&3]) }
func (p Pos) Less(o Pos) bool     { return p.Y < o.Y || (p.Y == o.Y && p.X < o.X) }
func (p Pos) Manhattan(o Pos) int { return abs(p.X-o.X) + abs(p.Y-o.Y) }

// Dir is one of the four grid directions, counter-clockwise from +X.
type Dir uint8

const (
	Right Dir = iota
	Up
	Left
	Down
)

// Dirs is the fixed walk order used by every adjacency scan.
var Dirs = [4]Dir{Right, Up, Left, Down}

var offsets = [4]Pos{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 0, Y: -1},
}

func (d Dir) Offset() Pos { return offsets[d&3] }

// Next is the direction 90 degrees counter-clockwise.
func (d Dir) Next() Dir { return (d + 1) & 3 }

func (d Dir) String() string {
	switch d & 3 {
	case Right:
		return "RIGHT"
	case Up:
		return "UP"
	case Left:
		return "LEFT"
	default:
		return "DOWN"
	}
}

// Diagonal returns the corner tile between d and d.Next().
func (p Pos) Diagonal(d Dir) Pos {
	return p.Add(offsets[d&3]).Add(offsets[d.Next()])
}

// SortPositions orders positions row-major (Y, then X).
func SortPositions(ps []Pos) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}

// SortedKeys returns the keys of m in row-major order.
func SortedKeys[T any](m map[Pos]T) []Pos {
	if len(m) == 0 {
		return nil
	}
	out := make([]Pos, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	SortPositions(out)
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
