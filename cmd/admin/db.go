package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/DeltaNedas/routorio-old/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	action := fs.String("action", "", "action filter (audits)")
	tick := fs.Uint64("tick", 0, "tick (digest)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := indexdb.OpenReadOnly(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(context.Background(), os.Stdout, db, q, strings.ToUpper(*action), *tick, *limit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runQuery prints one JSON object per row.
func runQuery(ctx context.Context, out io.Writer, db *sql.DB, q, action string, tick uint64, limit int) error {
	enc := json.NewEncoder(out)
	switch q {
	case "snapshots":
		rows, err := indexdb.Snapshots(ctx, db, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case "audits":
		rows, err := indexdb.RecentAudits(ctx, db, action, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case "meltdowns":
		return runQuery(ctx, out, db, "audits", "MELTDOWN", tick, limit)
	case "digest":
		d, err := indexdb.TickDigest(ctx, db, tick)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		if d == "" {
			return fmt.Errorf("tick %d not indexed", tick)
		}
		_ = enc.Encode(map[string]any{"tick": tick, "digest": d})
	default:
		return fmt.Errorf("unknown query %q (want snapshots, audits, meltdowns, digest)", q)
	}
	return nil
}
