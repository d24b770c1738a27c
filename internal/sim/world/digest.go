package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(w.graph.NextNetworkID()))
	digestWriteU64(h, &tmp, w.counters.Emitted)
	digestWriteU64(h, &tmp, w.counters.Delivered)
	digestWriteU64(h, &tmp, w.counters.Meltdowns)
	digestWriteU64(h, &tmp, w.counters.Strikes)

	for _, p := range grid.SortedKeys(w.blocks) {
		b := w.blocks[p]
		digestWritePos(h, &tmp, p)
		digestWriteU64(h, &tmp, uint64(b.id))
		digestWriteF64(h, &tmp, b.hp)
		digestWriteU64(h, &tmp, uint64(b.items))
		digestWriteF64(h, &tmp, b.fuel)
	}

	nodes, nets := w.graph.Export()
	for _, n := range nodes {
		digestWritePos(h, &tmp, n.Pos)
		digestWriteU64(h, &tmp, uint64(n.Network))
		digestWriteF64(h, &tmp, n.Heat)
		digestWriteF64(h, &tmp, n.Fuel)
		digestWriteF64(h, &tmp, n.FuseTime)
		digestWriteU64(h, &tmp, uint64(n.Slot))
		digestWriteU64(h, &tmp, uint64(n.BlendBits))
	}
	for _, net := range nets {
		digestWriteU64(h, &tmp, uint64(net.ID))
		digestWriteF64(h, &tmp, net.Warmup)
		digestWriteI64(h, &tmp, int64(net.Cursor))
		digestWriteU64(h, &tmp, uint64(len(net.Members)))
		for _, p := range net.Members {
			digestWritePos(h, &tmp, p)
		}
	}

	for _, t := range w.queue.Pending() {
		h.Write([]byte(t.Kind))
		digestWriteU64(h, &tmp, t.Network)
	}

	return hex.EncodeToString(h.Sum(nil))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWritePos(h hashWriter, tmp *[8]byte, p grid.Pos) {
	digestWriteI64(h, tmp, int64(p.X))
	digestWriteI64(h, tmp, int64(p.Y))
}
