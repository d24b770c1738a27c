package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Block kinds the world knows how to simulate.
const (
	KindAir          = "AIR"
	KindFusionRouter = "FUSION_ROUTER"
	KindContainer    = "CONTAINER"
	KindCore         = "CORE"
	KindMagnet       = "MAGNET"
	KindFuelTank     = "FUEL_TANK"
	KindPowerNode    = "POWER_NODE"
	KindWall         = "WALL"
)

var knownKinds = map[string]bool{
	KindAir: true, KindFusionRouter: true, KindContainer: true, KindCore: true,
	KindMagnet: true, KindFuelTank: true, KindPowerNode: true, KindWall: true,
}

//go:embed defaults/blocks.json
var defaultBlocks []byte

type Catalogs struct {
	Blocks BlockCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	Health float64 `json:"health,omitempty"`
	Solid  bool    `json:"solid,omitempty"`

	// HasItems marks blocks a router can dispatch into.
	HasItems     bool `json:"has_items,omitempty"`
	Capacity     int  `json:"capacity,omitempty"`
	DrainPerTick int  `json:"drain_per_tick,omitempty"`
	Magnet       bool `json:"magnet,omitempty"`
}

// Load reads blocks.json from configDir.
func Load(configDir string) (*Catalogs, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "blocks.json"))
	if err != nil {
		return nil, err
	}
	return parse(raw)
}

// Defaults returns the catalog compiled into the binary.
func Defaults() *Catalogs {
	c, err := parse(defaultBlocks)
	if err != nil {
		panic(err)
	}
	return c
}

func parse(raw []byte) (*Catalogs, error) {
	var c Catalogs
	if err := loadBlocks(raw, &c.Blocks); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(raw []byte, out *BlockCatalog) error {
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if !knownKinds[d.Kind] {
			return fmt.Errorf("blocks.json: %s: unknown kind %q", d.ID, d.Kind)
		}
		if d.Capacity < 0 || d.DrainPerTick < 0 || d.Health < 0 {
			return fmt.Errorf("blocks.json: %s: negative value", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// AIR is palette id 0.
	if d, ok := out.Defs["AIR"]; !ok || d.Kind != KindAir {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// Lookup returns the definition of block id.
func (b *BlockCatalog) Lookup(id string) (BlockDef, bool) {
	d, ok := b.Defs[id]
	return d, ok
}

// ByKind returns the id of the first block (in palette order) of the given kind.
func (b *BlockCatalog) ByKind(kind string) (string, bool) {
	for _, id := range b.Palette {
		if b.Defs[id].Kind == kind {
			return id, true
		}
	}
	return "", false
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
