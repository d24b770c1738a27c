package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "github.com/DeltaNedas/routorio-old/internal/persistence/log"
	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/encoding"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	routers := fs.Bool("routers", false, "print every router")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" && strings.TrimSpace(*worldID) != "" {
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or -world")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if err := printInspect(os.Stdout, snap, *routers); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printInspect(out io.Writer, snap snapshot.SnapshotV1, withRouters bool) error {
	c := snap.Counters
	fmt.Fprintf(out, "snapshot v%d world=%s tick=%d tuning=%s palette=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, short(snap.TuningDigest), len(snap.Palette))
	fmt.Fprintf(out, "bounds=[%d,%d]..[%d,%d] blocks=%d routers=%d networks=%d pending=%d\n",
		snap.Bounds.MinX, snap.Bounds.MinY, snap.Bounds.MaxX, snap.Bounds.MaxY,
		len(snap.Blocks), len(snap.Routers), len(snap.Networks), len(snap.Pending))
	fmt.Fprintf(out, "emitted=%d delivered=%d meltdowns=%d strikes=%d next_network=%d\n",
		c.Emitted, c.Delivered, c.Meltdowns, c.Strikes, c.NextNetwork)

	if len(snap.Networks) == 0 {
		fmt.Fprintln(out, "compact snapshot: networks are rebuilt from router records on load")
	}
	nets := append([]snapshot.NetworkV1(nil), snap.Networks...)
	sort.Slice(nets, func(i, j int) bool { return nets[i].ID < nets[j].ID })
	for _, n := range nets {
		fmt.Fprintf(out, "network %d members=%d warmup=%.4f cursor=%d\n", n.ID, len(n.Members), n.Warmup, n.Cursor)
	}

	if !withRouters {
		return nil
	}
	for _, r := range snap.Routers {
		rec, err := encoding.DecodeRouterRecord(r.RecordVersion, r.Record)
		if err != nil {
			return fmt.Errorf("router %v: %w", r.Pos, err)
		}
		fmt.Fprintf(out, "router %v network=%d hp=%.0f fuel=%.2f heat=%.4f warmup=%.4f fuse=%.1f blend=%#04x slot=%d\n",
			r.Pos, r.Network, r.HP, r.Fuel, rec.Heat, rec.Warmup, rec.FuseTime, rec.BlendBits, r.Slot)
	}
	return nil
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	action := fs.String("action", "", "action filter, e.g. MELTDOWN (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	area := fs.String("area", "", "area filter: x1,y1:x2,y2 (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	f := auditFilter{Action: strings.ToUpper(strings.TrimSpace(*action)), Since: *sinceTick, To: *toTick}
	if strings.TrimSpace(*area) != "" {
		lo, hi, err := parseArea(*area)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -area:", err)
			os.Exit(2)
		}
		f.Area, f.Min, f.Max = true, lo, hi
	}

	recs, err := readAudit(filepath.Join(*dataDir, "worlds", *worldID), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range recs {
		_ = enc.Encode(e)
	}
}

type auditFilter struct {
	Action    string
	Since, To uint64
	Area      bool
	Min, Max  [2]int
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if e.Tick < f.Since || (f.To != 0 && e.Tick > f.To) {
		return false
	}
	if f.Area {
		for i := 0; i < 2; i++ {
			if e.Pos[i] < f.Min[i] || e.Pos[i] > f.Max[i] {
				return false
			}
		}
	}
	return true
}

func readAudit(worldDir string, f auditFilter) ([]world.AuditEntry, error) {
	files, err := persistlog.Files(filepath.Join(worldDir, "audit"), "audit")
	if err != nil {
		return nil, err
	}
	var out []world.AuditEntry
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseArea(s string) (lo, hi [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return lo, hi, fmt.Errorf("want x1,y1:x2,y2")
	}
	a, err := parsePos(parts[0])
	if err != nil {
		return lo, hi, err
	}
	b, err := parsePos(parts[1])
	if err != nil {
		return lo, hi, err
	}
	for i := 0; i < 2; i++ {
		lo[i], hi[i] = min(a[i], b[i]), max(a[i], b[i])
	}
	return lo, hi, nil
}

func parsePos(s string) ([2]int, error) {
	var p [2]int
	xy := strings.Split(strings.TrimSpace(s), ",")
	if len(xy) != 2 {
		return p, fmt.Errorf("bad position %q", s)
	}
	for i, v := range xy {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return p, fmt.Errorf("bad position %q: %w", s, err)
		}
		p[i] = n
	}
	return p, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			best, bestTick = filepath.Join(dir, name), tick
		}
	}
	return best
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
