package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

// D1Config points the index at an HTTP ingest endpoint that accepts
// {"events":[...]} batches (a Cloudflare D1 worker in production).
type D1Config struct {
	Endpoint      string
	Token         string
	WorldID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds the events kept across failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	ch   chan d1Event
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	queueDropped  atomic.Uint64
	retainDropped atomic.Uint64
	flushFail     atomic.Uint64
	flushedEvents atomic.Uint64
}

type D1Stats struct {
	QueueDepth         int
	QueueDroppedTotal  uint64
	RetainDroppedTotal uint64
	FlushFailTotal     uint64
	FlushedTotal       uint64
}

type d1Event struct {
	Kind    string `json:"kind"`
	WorldID string `json:"world_id"`
	Payload any    `json:"payload"`
}

type d1TickPayload struct {
	Tick     uint64                  `json:"tick"`
	Digest   string                  `json:"digest"`
	Commands []world.RecordedCommand `json:"commands,omitempty"`
}

type d1SnapshotPayload struct {
	Tick      uint64 `json:"tick"`
	Path      string `json:"path"`
	Routers   int    `json:"routers"`
	Networks  int    `json:"networks"`
	Blocks    int    `json:"blocks"`
	Pending   int    `json:"pending"`
	Emitted   uint64 `json:"emitted"`
	Delivered uint64 `json:"delivered"`
	Meltdowns uint64 `json:"meltdowns"`
	Strikes   uint64 `json:"strikes"`
}

type d1CatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.WorldID = strings.TrimSpace(cfg.WorldID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.WorldID == "" {
		return nil, fmt.Errorf("empty world id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}

	d := &D1Index{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan d1Event, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) Stats() D1Stats {
	if d == nil {
		return D1Stats{}
	}
	return D1Stats{
		QueueDepth:         len(d.ch),
		QueueDroppedTotal:  d.queueDropped.Load(),
		RetainDroppedTotal: d.retainDropped.Load(),
		FlushFailTotal:     d.flushFail.Load(),
		FlushedTotal:       d.flushedEvents.Load(),
	}
}

func (d *D1Index) WriteTick(e world.TickLogEntry) error {
	d.enqueue("tick", d1TickPayload{Tick: e.Tick, Digest: e.Digest, Commands: e.Commands})
	return nil
}

func (d *D1Index) WriteAudit(e world.AuditEntry) error {
	d.enqueue("audit", e)
	return nil
}

func (d *D1Index) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	r := snapshotRowOf(path, snap)
	d.enqueue("snapshot", d1SnapshotPayload{
		Tick:      r.Tick,
		Path:      r.Path,
		Routers:   r.Routers,
		Networks:  r.Networks,
		Blocks:    r.Blocks,
		Pending:   r.Pending,
		Emitted:   r.Emitted,
		Delivered: r.Delivered,
		Meltdowns: r.Meltdowns,
		Strikes:   r.Strikes,
	})
}

func (d *D1Index) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(configDir, cats, tune) {
		d.enqueue("catalog", d1CatalogPayload{Name: r.Name, Digest: r.Digest, JSON: string(r.JSON), UpdatedAt: now})
	}
	return nil
}

func (d *D1Index) enqueue(kind string, payload any) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- d1Event{Kind: kind, WorldID: d.cfg.WorldID, Payload: payload}:
	default:
		d.queueDropped.Add(1)
		d.printf("d1 index queue full; drop kind=%s world=%s", kind, d.cfg.WorldID)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	// A failed batch is kept and retried on the next flush.
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				d.retainDropped.Add(uint64(over))
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		d.flushedEvents.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	body := struct {
		Events []d1Event `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-routorio-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
