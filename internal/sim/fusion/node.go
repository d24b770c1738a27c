package fusion

import (
	"errors"

	"github.com/DeltaNedas/routorio-old/internal/sim/grid"
)

// Neutron is the only item fusion routers produce.
const Neutron = "NEUTRON"

// NetworkID is a handle into the Graph arena. Zero means "no network".
type NetworkID uint64

// ErrRejected may be returned by Consumer.Accept when it changed its mind
// between CanAccept and Accept.
var ErrRejected = errors.New("fusion: item rejected")

// Consumer is anything next to a router that can take items.
type Consumer interface {
	CanAccept(from grid.Pos, item string) bool
	Accept(from grid.Pos, item string) error
}

// Output is one adjacent consumer of a node.
type Output struct {
	Pos      grid.Pos
	Consumer Consumer
	Magnet   bool
}

type State uint8

const (
	StateIdle State = iota
	StateHeating
	StateProducing
	StateBlocked
	StateMeltdown
)

func (s State) String() string {
	switch s {
	case StateHeating:
		return "HEATING"
	case StateProducing:
		return "PRODUCING"
	case StateBlocked:
		return "BLOCKED"
	case StateMeltdown:
		return "MELTDOWN"
	default:
		return "IDLE"
	}
}

// Node is one fusion router.
type Node struct {
	Pos grid.Pos

	Heat     float64
	Fuel     float64
	FuseTime float64
	Slot     int

	// Index is the position assigned by the last dispatch list rebuild.
	Index     int
	Magnets   int
	BlendBits uint16

	// Power is the power ratio seen by the last thermal step.
	Power float64

	network NetworkID
	outputs []Output
	valid   bool
	dead    bool
}

func (n *Node) Network() NetworkID { return n.network }
func (n *Node) Outputs() []Output  { return n.outputs }
func (n *Node) Dead() bool         { return n.dead }

func (n *Node) state(fuseHeat float64) State {
	switch {
	case n.dead:
		return StateMeltdown
	case n.Heat >= fuseHeat && n.Slot > 0:
		return StateBlocked
	case n.Heat >= fuseHeat:
		return StateProducing
	case n.valid:
		return StateHeating
	default:
		return StateIdle
	}
}
