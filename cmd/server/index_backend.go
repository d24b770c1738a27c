package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/DeltaNedas/routorio-old/internal/persistence/indexdb"
	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(worldDir, worldID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("ROUTORIO_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("ROUTORIO_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("ROUTORIO_INDEX_BACKEND=d1 but ROUTORIO_INDEX_D1_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("ROUTORIO_INDEX_D1_TOKEN")),
			WorldID:       worldID,
			BatchSize:     envInt("ROUTORIO_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("ROUTORIO_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported ROUTORIO_INDEX_BACKEND: %s", backend)
	}
}

type indexStats struct {
	QueueDepth int
	Dropped    uint64
}

func statsOf(idx runtimeIndex) (indexStats, bool) {
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := v.Stats()
		return indexStats{QueueDepth: s.QueueLen, Dropped: s.DroppedTicks + s.DroppedAudits + s.DroppedOther}, true
	case *indexdb.D1Index:
		s := v.Stats()
		return indexStats{QueueDepth: s.QueueDepth, Dropped: s.QueueDroppedTotal + s.RetainDroppedTotal}, true
	}
	return indexStats{}, false
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
