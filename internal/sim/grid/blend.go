package grid

// BlendBits packs a render hint for a connected block into three nibbles:
// bits 0-3 edges (neighbor in that direction is the same block), bits 4-7 outer
// corners (neither side of the corner connects) and bits 8-11 inner corners
// (both sides connect but the diagonal does not). The top nibble is unused.
func BlendBits(p Pos, same func(Pos) bool) uint16 {
	var bits uint16
	var edge [4]bool
	for _, d := range Dirs {
		if same(p.Nearby(d)) {
			edge[d] = true
			bits |= 1 << d
		}
	}
	for _, d := range Dirs {
		a, b := edge[d], edge[d.Next()]
		switch {
		case !a && !b:
			bits |= 1 << (4 + d)
		case a && b && !same(p.Diagonal(d)):
			bits |= 1 << (8 + d)
		}
	}
	return bits
}

// Edges reports which sides connect according to bits.
func Edges(bits uint16) (out [4]bool) {
	for _, d := range Dirs {
		out[d] = bits&(1<<d) != 0
	}
	return out
}
