package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "github.com/DeltaNedas/routorio-old/internal/persistence/log"
	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

var errStop = errors.New("stop")

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		configDir = flag.String("configs", "./configs", "config directory")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d world=%s tick=%d routers=%d networks=%d blocks=%d pending=%d meltdowns=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick,
		len(snap.Routers), len(snap.Networks), len(snap.Blocks), len(snap.Pending), snap.Counters.Meltdowns)

	if *eventsDir == "" {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	w, err := worldFromSnapshot(snap, cats)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	files, err := persistlog.Files(*eventsDir, "events")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list events:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no events files found in", *eventsDir)
		os.Exit(1)
	}

	checked, err := replay(w, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", checked, snap.Header.Tick)
}

// worldFromSnapshot rebuilds the world with the tuning it was recorded with,
// since digests depend on it.
func worldFromSnapshot(snap snapshot.SnapshotV1, cats *catalogs.Catalogs) (*world.World, error) {
	tune := tuning.Defaults()
	if len(snap.Tuning) > 0 {
		t, err := tuning.Parse(snap.Tuning)
		if err != nil {
			return nil, fmt.Errorf("snapshot tuning: %w", err)
		}
		tune = t
	}
	w, err := world.New(world.WorldConfig{
		ID:           snap.Header.WorldID,
		Tuning:       tune,
		TuningDigest: snap.TuningDigest,
	}, cats)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

// replay steps w through every logged tick at or after its current tick and
// compares digests from verifyFrom on. It returns the number of ticks checked.
func replay(w *world.World, files []string, verifyFrom, toTick uint64) (uint64, error) {
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	var checked uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
			}

			cmds := make([]world.CommandEnvelope, 0, len(entry.Commands))
			for _, rc := range entry.Commands {
				cmds = append(cmds, world.CommandEnvelope{Actor: rc.Actor, Cmd: rc.Cmd})
			}
			tick, gotDigest := w.StepOnce(cmds)

			if tick >= verifyFrom {
				checked++
				if gotDigest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
				}
			}
			return nil
		})
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			return checked, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return checked, nil
}
