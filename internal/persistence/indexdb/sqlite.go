package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

// SQLiteIndex mirrors the tick log, audits and snapshot metadata into a
// queryable database. Writes are queued and batched by one goroutine; when
// the queue is full entries are dropped rather than stalling the world loop.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	droppedTicks  atomic.Uint64
	droppedAudits atomic.Uint64
	droppedOther  atomic.Uint64
}

// Stats reports how many entries were dropped because the queue was full.
type Stats struct {
	QueueLen      int
	DroppedTicks  uint64
	DroppedAudits uint64
	DroppedOther  uint64
}

type reqKind int

const (
	reqTick reqKind = iota
	reqAudit
	reqSnapshot
	reqCatalog
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	catalog  catalogRow
}

type snapshotRow struct {
	Tick      uint64
	Path      string
	Routers   int
	Networks  int
	Blocks    int
	Pending   int
	Emitted   uint64
	Delivered uint64
	Meltdowns uint64
	Strikes   uint64
}

type catalogRow struct {
	Name   string
	Digest string
	JSON   []byte
}

const queueSize = 1 << 18

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueSize),
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueLen:      len(s.ch),
		DroppedTicks:  s.droppedTicks.Load(),
		DroppedAudits: s.droppedAudits.Load(),
		DroppedOther:  s.droppedOther.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(e world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: e}:
	default:
		s.droppedTicks.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(e world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: e}:
	default:
		s.droppedAudits.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueueOther(req{kind: reqSnapshot, snapshot: snapshotRowOf(path, snap)})
}

// UpsertCatalogs stores the raw block catalog, the palette and the tuning the
// server runs with, each keyed by digest.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || s.closed.Load() || cats == nil {
		return nil
	}
	for _, r := range catalogRows(configDir, cats, tune) {
		s.enqueueOther(req{kind: reqCatalog, catalog: r})
	}
	return nil
}

func (s *SQLiteIndex) enqueueOther(r req) {
	select {
	case s.ch <- r:
	default:
		s.droppedOther.Add(1)
	}
}

func snapshotRowOf(path string, snap snapshot.SnapshotV1) snapshotRow {
	return snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Routers:   len(snap.Routers),
		Networks:  len(snap.Networks),
		Blocks:    len(snap.Blocks),
		Pending:   len(snap.Pending),
		Emitted:   snap.Counters.Emitted,
		Delivered: snap.Counters.Delivered,
		Meltdowns: snap.Counters.Meltdowns,
		Strikes:   snap.Counters.Strikes,
	}
}

func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	rows := make([]catalogRow, 0, 3)
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil && len(b) > 0 {
			rows = append(rows, catalogRow{Name: "blocks_defs", Digest: cats.Blocks.DefsDigest, JSON: b})
		}
	}
	if b, err := json.Marshal(cats.Blocks.Palette); err == nil {
		rows = append(rows, catalogRow{Name: "blocks_palette", Digest: cats.Blocks.PaletteDigest, JSON: b})
	}
	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, catalogRow{Name: "tuning", Digest: hex.EncodeToString(sum[:]), JSON: b})
	}
	return rows
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma failed (%s): %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT NOT NULL,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (name, digest)
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS commands (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			cmd_id TEXT NOT NULL,
			op TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			cmd_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS commands_actor_tick ON commands(actor, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			from_block INTEGER NOT NULL,
			to_block INTEGER NOT NULL,
			network INTEGER NOT NULL,
			value REAL NOT NULL,
			reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS audits_tick ON audits(tick);`,
		`CREATE INDEX IF NOT EXISTS audits_action_tick ON audits(action, tick);`,
		`CREATE INDEX IF NOT EXISTS audits_pos ON audits(x, y);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			routers INTEGER NOT NULL,
			networks INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			emitted INTEGER NOT NULL,
			delivered INTEGER NOT NULL,
			meltdowns INTEGER NOT NULL,
			strikes INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');`,
	}
	for _, st := range stmts {
		if _, err := db.Exec(st); err != nil {
			return fmt.Errorf("sqlite schema failed: %w", err)
		}
	}
	return nil
}

const (
	commitEvery    = 2000
	commitInterval = 2 * time.Second
)

func (s *SQLiteIndex) loop() {
	ticker := time.NewTicker(commitInterval)
	defer ticker.Stop()

	var tx *sql.Tx
	var stmts *txStmts
	ops := 0

	begin := func() error {
		if tx != nil {
			return nil
		}
		t, err := s.db.Begin()
		if err != nil {
			return err
		}
		st, err := prepare(t)
		if err != nil {
			_ = t.Rollback()
			return err
		}
		tx, stmts = t, st
		return nil
	}
	commit := func() {
		if tx == nil {
			return
		}
		stmts.close()
		_ = tx.Commit()
		tx, stmts = nil, nil
		ops = 0
	}

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if err := begin(); err != nil {
				continue
			}
			ops += stmts.apply(r)
			if ops >= commitEvery {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}

type txStmts struct {
	tick     *sql.Stmt
	command  *sql.Stmt
	audit    *sql.Stmt
	snapshot *sql.Stmt
	catalog  *sql.Stmt
}

func prepare(tx *sql.Tx) (*txStmts, error) {
	var st txStmts
	var err error
	if st.tick, err = tx.Prepare(`INSERT OR REPLACE INTO ticks(tick, digest, commands) VALUES (?, ?, ?)`); err != nil {
		return nil, err
	}
	if st.command, err = tx.Prepare(`INSERT OR REPLACE INTO commands(tick, seq, actor, cmd_id, op, x, y, cmd_json) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		st.close()
		return nil, err
	}
	if st.audit, err = tx.Prepare(`INSERT INTO audits(tick, actor, action, x, y, from_block, to_block, network, value, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		st.close()
		return nil, err
	}
	if st.snapshot, err = tx.Prepare(`INSERT OR REPLACE INTO snapshots(tick, path, routers, networks, blocks, pending, emitted, delivered, meltdowns, strikes, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		st.close()
		return nil, err
	}
	if st.catalog, err = tx.Prepare(`INSERT OR REPLACE INTO catalogs(name, digest, json, updated_at) VALUES (?, ?, ?, ?)`); err != nil {
		st.close()
		return nil, err
	}
	return &st, nil
}

func (st *txStmts) close() {
	for _, s := range []*sql.Stmt{st.tick, st.command, st.audit, st.snapshot, st.catalog} {
		if s != nil {
			_ = s.Close()
		}
	}
}

// apply executes one request and returns the number of rows written.
func (st *txStmts) apply(r req) int {
	switch r.kind {
	case reqTick:
		e := r.tick
		if _, err := st.tick.Exec(int64(e.Tick), e.Digest, len(e.Commands)); err != nil {
			return 0
		}
		n := 1
		for i, c := range e.Commands {
			b, _ := json.Marshal(c.Cmd)
			if _, err := st.command.Exec(int64(e.Tick), i, c.Actor, c.Cmd.ID, c.Cmd.Op, c.Cmd.Pos[0], c.Cmd.Pos[1], string(b)); err == nil {
				n++
			}
		}
		return n
	case reqAudit:
		e := r.audit
		if _, err := st.audit.Exec(int64(e.Tick), e.Actor, e.Action, e.Pos[0], e.Pos[1], int(e.From), int(e.To), int64(e.Network), e.Value, e.Reason); err != nil {
			return 0
		}
		return 1
	case reqSnapshot:
		sr := r.snapshot
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := st.snapshot.Exec(int64(sr.Tick), sr.Path, sr.Routers, sr.Networks, sr.Blocks, sr.Pending,
			int64(sr.Emitted), int64(sr.Delivered), int64(sr.Meltdowns), int64(sr.Strikes), now); err != nil {
			return 0
		}
		return 1
	case reqCatalog:
		c := r.catalog
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := st.catalog.Exec(c.Name, c.Digest, string(c.JSON), now); err != nil {
			return 0
		}
		return 1
	}
	return 0
}

// AuditRow is an audit entry read back from the index.
type AuditRow struct {
	Tick    uint64
	Actor   string
	Action  string
	Pos     [2]int
	From    uint16
	To      uint16
	Network uint64
	Value   float64
	Reason  string
}

// SnapshotRow is the metadata of one written snapshot.
type SnapshotRow struct {
	Tick      uint64
	Path      string
	Routers   int
	Networks  int
	Meltdowns uint64
}

// OpenReadOnly opens an existing index for queries without starting a writer.
func OpenReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return sql.Open("sqlite", "file:"+path+"?mode=ro")
}

// RecentAudits returns the newest audits, optionally restricted to one action.
func RecentAudits(ctx context.Context, db *sql.DB, action string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT tick, actor, action, x, y, from_block, to_block, network, value, reason FROM audits`
	args := []any{}
	if action != "" {
		q += ` WHERE action = ?`
		args = append(args, action)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		var tick, network int64
		var from, to int
		if err := rows.Scan(&tick, &a.Actor, &a.Action, &a.Pos[0], &a.Pos[1], &from, &to, &network, &a.Value, &a.Reason); err != nil {
			return nil, err
		}
		a.Tick, a.Network = uint64(tick), uint64(network)
		a.From, a.To = uint16(from), uint16(to)
		out = append(out, a)
	}
	return out, rows.Err()
}

// TickDigest returns the recorded digest of tick, or "" if it was not indexed.
func TickDigest(ctx context.Context, db *sql.DB, tick uint64) (string, error) {
	var d string
	err := db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE tick = ?`, int64(tick)).Scan(&d)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return d, err
}

// Snapshots lists indexed snapshots, newest first.
func Snapshots(ctx context.Context, db *sql.DB, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `SELECT tick, path, routers, networks, meltdowns FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var tick, melt int64
		if err := rows.Scan(&tick, &r.Path, &r.Routers, &r.Networks, &melt); err != nil {
			return nil, err
		}
		r.Tick, r.Meltdowns = uint64(tick), uint64(melt)
		out = append(out, r)
	}
	return out, rows.Err()
}
