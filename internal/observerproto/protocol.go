package observerproto

// Version is the observer protocol version (separate from the command WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Routers within Radius (Chebyshev) of Center are reported, at most MaxRouters.
	Center     [2]int `json:"center"`
	Radius     int    `json:"radius"`
	MaxRouters int    `json:"max_routers"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	BlockPalette    []string    `json:"block_palette"`
}

type WorldParams struct {
	TickRateHz     int     `json:"tick_rate_hz"`
	DeltaPerTick   float64 `json:"delta_per_tick"`
	BoundaryR      int     `json:"boundary_r"`
	FuseHeat       float64 `json:"fuse_heat"`
	ProductionTime float64 `json:"production_time"`
	MeltdownTime   float64 `json:"meltdown_time"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Networks []NetworkSummary `json:"networks"`
	Routers  []RouterState    `json:"routers"`
	Events   []TickEvent      `json:"events,omitempty"`
	Audits   []AuditEntry     `json:"audits,omitempty"`
	Counters Counters         `json:"counters"`
}

type NetworkSummary struct {
	ID      uint64  `json:"id"`
	Members int     `json:"members"`
	Warmup  float64 `json:"warmup"`
	Edges   int     `json:"edges"`
	Cursor  int     `json:"cursor"`
	Power   float64 `json:"power"`
}

type RouterState struct {
	Pos            [2]int  `json:"pos"`
	Network        uint64  `json:"network"`
	Heat           float64 `json:"heat"`
	Fuel           float64 `json:"fuel"`
	Slot           int     `json:"slot"`
	State          string  `json:"state"`
	Warmup         float64 `json:"warmup"`
	PowerOutput    float64 `json:"power_output"`
	ProductionRate float64 `json:"production_rate"`
	Warning        float64 `json:"warning,omitempty"`
}

// Event types.
const (
	EventEmit     = "EMIT"
	EventDeliver  = "DELIVER"
	EventMeltdown = "MELTDOWN"
	EventStrike   = "STRIKE"
	EventMerge    = "MERGE"
)

type TickEvent struct {
	Type    string  `json:"type"`
	Pos     [2]int  `json:"pos"`
	To      []int   `json:"to,omitempty"`
	Network uint64  `json:"network,omitempty"`
	Value   float64 `json:"value,omitempty"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Pos    [2]int `json:"pos"`
	From   uint16 `json:"from"`
	To     uint16 `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type Counters struct {
	Emitted   uint64 `json:"emitted"`
	Delivered uint64 `json:"delivered"`
	Meltdowns uint64 `json:"meltdowns"`
	Strikes   uint64 `json:"strikes"`
}
