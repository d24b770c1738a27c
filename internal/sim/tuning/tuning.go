package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	DeltaPerTick       float64 `yaml:"delta_per_tick" json:"delta_per_tick"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	WorldBoundaryR     int     `yaml:"world_boundary_r" json:"world_boundary_r"`

	Fusion Fusion `yaml:"fusion" json:"fusion"`
	Rules  Rules  `yaml:"rules" json:"rules"`
}

// Fusion holds the per-router thermal constants. Rates are per delta unit
// (one delta is a 60Hz frame).
type Fusion struct {
	HeatRate     float64 `yaml:"heat_rate" json:"heat_rate"`
	CoolRate     float64 `yaml:"cool_rate" json:"cool_rate"`
	WarmdownRate float64 `yaml:"warmdown_rate" json:"warmdown_rate"`
	FuseHeat     float64 `yaml:"fuse_heat" json:"fuse_heat"`
	HeatFloor    float64 `yaml:"heat_floor" json:"heat_floor"`

	ProductionTime float64 `yaml:"production_time" json:"production_time"`
	MeltdownTime   float64 `yaml:"meltdown_time" json:"meltdown_time"`

	FuelCapacity   float64 `yaml:"fuel_capacity" json:"fuel_capacity"`
	FuelLowerBound float64 `yaml:"fuel_lower_bound" json:"fuel_lower_bound"`
	FuelShareRate  float64 `yaml:"fuel_share_rate" json:"fuel_share_rate"`
	FuelFlow       float64 `yaml:"fuel_flow" json:"fuel_flow"`

	PowerGeneration float64 `yaml:"power_generation" json:"power_generation"`
	PowerUse        float64 `yaml:"power_use" json:"power_use"`
	PowerNodeOutput float64 `yaml:"power_node_output" json:"power_node_output"`

	ExplosionRadius int     `yaml:"explosion_radius" json:"explosion_radius"`
	ExplosionDamage float64 `yaml:"explosion_damage" json:"explosion_damage"`
	IgnitionRadius  int     `yaml:"ignition_radius" json:"ignition_radius"`
	IgnitionDamage  float64 `yaml:"ignition_damage" json:"ignition_damage"`
	MagnetSlots     int     `yaml:"magnet_slots" json:"magnet_slots"`
	StrikeScale     float64 `yaml:"strike_scale" json:"strike_scale"`
}

type Rules struct {
	ReactorExplosions bool `yaml:"reactor_explosions" json:"reactor_explosions"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         60,
		DeltaPerTick:       1,
		SnapshotEveryTicks: 60 * 60 * 5,
		WorldBoundaryR:     512,
		Fusion: Fusion{
			HeatRate:     0.000005,
			CoolRate:     -0.000004,
			WarmdownRate: -0.00001,
			FuseHeat:     0.2,
			HeatFloor:    0.01,

			// 2 minutes per neutron; a blocked router blows one minute after that.
			ProductionTime: 120 * 60,
			MeltdownTime:   180 * 60,

			FuelCapacity:   20,
			FuelLowerBound: 1,
			FuelShareRate:  0.5,
			FuelFlow:       0.25,

			PowerGeneration: 50,
			PowerUse:        1,
			PowerNodeOutput: 4,

			ExplosionRadius: 5,
			ExplosionDamage: 4000,
			IgnitionRadius:  3,
			IgnitionDamage:  20,
			MagnetSlots:     8,
			StrikeScale:     250,
		},
		Rules: Rules{ReactorExplosions: true},
	}
}

// Load reads tuning.yaml on top of Defaults, so a partial file is valid.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(raw)
}

// Parse decodes tuning yaml on top of Defaults and validates the result.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Digest is the sha256 of the canonical yaml encoding of t.
func (t Tuning) Digest() string {
	b, _ := yaml.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (t Tuning) Validate() error {
	f := t.Fusion
	switch {
	case t.TickRateHz <= 0:
		return errors.New("tick_rate_hz must be positive")
	case t.DeltaPerTick <= 0:
		return errors.New("delta_per_tick must be positive")
	case f.FuseHeat <= 0 || f.FuseHeat > 1:
		return fmt.Errorf("fuse_heat out of range: %v", f.FuseHeat)
	case f.ProductionTime <= 0:
		return errors.New("production_time must be positive")
	case f.MeltdownTime <= f.ProductionTime:
		return fmt.Errorf("meltdown_time (%v) must exceed production_time (%v)", f.MeltdownTime, f.ProductionTime)
	case f.FuelCapacity <= 0:
		return errors.New("fuel_capacity must be positive")
	case f.FuelLowerBound < 0 || f.FuelLowerBound >= f.FuelCapacity:
		return fmt.Errorf("fuel_lower_bound out of range: %v", f.FuelLowerBound)
	case f.HeatFloor <= 0:
		return errors.New("heat_floor must be positive")
	case f.MagnetSlots <= 0:
		return errors.New("magnet_slots must be positive")
	case f.StrikeScale <= 0:
		return errors.New("strike_scale must be positive")
	case f.PowerUse <= 0:
		return errors.New("power_use must be positive")
	case f.ExplosionRadius < 0 || f.IgnitionRadius < 0:
		return errors.New("explosion and ignition radius must not be negative")
	}
	return nil
}
