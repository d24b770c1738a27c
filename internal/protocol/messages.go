package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// MaxQueue bounds the per-connection outbound queue.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ClientID        string      `json:"client_id"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    DigestRef   `json:"block_palette"`
	Palette         []string    `json:"palette"`
}

type WorldParams struct {
	TickRateHz   int     `json:"tick_rate_hz"`
	DeltaPerTick float64 `json:"delta_per_tick"`
	BoundaryR    int     `json:"boundary_r"`
	TuningDigest string  `json:"tuning_digest,omitempty"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CMD (client -> server). Which optional fields apply depends on Op.
type CmdMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Op              string  `json:"op"`
	Pos             [2]int  `json:"pos"`
	Block           string  `json:"block,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	Damage          float64 `json:"damage,omitempty"`
	Status          string  `json:"status,omitempty"`
}

// ACK (server -> client), one per CMD.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick"`
}

func NewAck(id string, tick uint64, code, message string) AckMsg {
	return AckMsg{
		Type:            TypeAck,
		ProtocolVersion: Version,
		ID:              id,
		OK:              code == "",
		Code:            code,
		Message:         message,
		Tick:            tick,
	}
}
