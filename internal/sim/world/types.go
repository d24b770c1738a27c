package world

import (
	"github.com/DeltaNedas/routorio-old/internal/protocol"
)

// CommandEnvelope carries one client command into the world loop. Resp is
// optional; the world never blocks on it.
type CommandEnvelope struct {
	Actor string
	Cmd   protocol.CmdMsg
	Resp  chan<- protocol.AckMsg
}

type RecordedCommand struct {
	Actor string          `json:"actor"`
	Cmd   protocol.CmdMsg `json:"cmd"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Commands []RecordedCommand `json:"commands,omitempty"`
	Digest   string            `json:"digest"`
}

// Audit actions.
const (
	AuditSetBlock       = "SET_BLOCK"
	AuditMeltdown       = "MELTDOWN"
	AuditStrike         = "STRIKE"
	AuditFuel           = "FUEL"
	AuditDrain          = "DRAIN"
	AuditNetworkMerge   = "NETWORK_MERGE"
	AuditNetworkRefresh = "NETWORK_REFRESH"
)

type AuditEntry struct {
	Tick    uint64  `json:"tick"`
	Actor   string  `json:"actor"`
	Action  string  `json:"action"`
	Pos     [2]int  `json:"pos"`
	From    uint16  `json:"from"`
	To      uint16  `json:"to"`
	Network uint64  `json:"network,omitempty"`
	Value   float64 `json:"value,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Counters are lifetime totals, carried across snapshots.
type Counters struct {
	Emitted   uint64
	Delivered uint64
	Meltdowns uint64
	Strikes   uint64
}

type ObserverJoinRequest struct {
	SessionID  string
	TickOut    chan []byte
	Center     [2]int
	Radius     int
	MaxRouters int
}

type ObserverSubscribeRequest struct {
	SessionID  string
	Center     [2]int
	Radius     int
	MaxRouters int
}
