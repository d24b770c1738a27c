package world

import "github.com/DeltaNedas/routorio-old/internal/sim/tuning"

type WorldConfig struct {
	ID string

	// Tuning holds tick rate, snapshot cadence, the fusion constants and
	// world rules. A zero value means tuning.Defaults().
	Tuning tuning.Tuning
	// TuningDigest identifies the tuning in snapshots and WELCOME. Empty
	// means Tuning.Digest().
	TuningDigest string

	InboxSize int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.Tuning.TickRateHz <= 0 {
		c.Tuning = tuning.Defaults()
	}
	if c.Tuning.DeltaPerTick <= 0 {
		c.Tuning.DeltaPerTick = 1
	}
	if c.Tuning.SnapshotEveryTicks <= 0 {
		c.Tuning.SnapshotEveryTicks = tuning.Defaults().SnapshotEveryTicks
	}
	if c.Tuning.WorldBoundaryR <= 0 {
		c.Tuning.WorldBoundaryR = tuning.Defaults().WorldBoundaryR
	}
	if c.TuningDigest == "" {
		c.TuningDigest = c.Tuning.Digest()
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
}
