package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "github.com/DeltaNedas/routorio-old/internal/persistence/log"
	"github.com/DeltaNedas/routorio-old/internal/persistence/objstore"
	"github.com/DeltaNedas/routorio-old/internal/persistence/snapshot"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
	"github.com/DeltaNedas/routorio-old/internal/transport/observer"
	"github.com/DeltaNedas/routorio-old/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		layoutPath = flag.String("layout", "", "initial layout yaml, applied only to a fresh world")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		compact    = flag.Bool("compact_snapshots", false, "write record-only snapshots; networks re-merge on load")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, s.Header.WorldID)
		}
		snap = &s
	}

	tune, err := resolveTuning(tp, snap, logger)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	w, err := world.New(world.WorldConfig{ID: *worldID, Tuning: tune}, cats)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else if lp := strings.TrimSpace(*layoutPath); lp != "" {
		l, err := world.LoadLayout(lp)
		if err != nil {
			logger.Fatalf("load layout: %v", err)
		}
		if err := w.ApplyLayout(l); err != nil {
			logger.Fatalf("apply layout: %v", err)
		}
		logger.Printf("applied layout=%s entries=%d", filepath.Base(lp), len(l.Blocks)+len(l.Fuel))
	}

	ctx, cancel := signalContext()
	defer cancel()

	mirror, err := openMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("open mirror: %v", err)
	}
	defer mirror.Close()

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	tickLog.OnClosed(mirror.Enqueue)
	auditLog.OnClosed(mirror.Enqueue)
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go runSnapshotWriter(ctx, worldDir, snapCh, *compact, idx, mirror, logger)

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, idx, mirror))

	enableAdminHTTP := envBool("ROUTORIO_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("ROUTORIO_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", stateHandler(w))
		mux.HandleFunc("/admin/v1/snapshot", snapshotHandler(w))

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (ROUTORIO_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s tick=%d", *addr, *worldID, w.CurrentTick())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// resolveTuning loads the tuning file. A resumed world may run without one,
// in which case the tuning stored in the snapshot is used.
func resolveTuning(path string, snap *snapshot.SnapshotV1, logger *log.Logger) (tuning.Tuning, error) {
	tune, err := tuning.Load(path)
	if err == nil {
		return tune, nil
	}
	if snap == nil || !os.IsNotExist(err) {
		return tune, err
	}
	if len(snap.Tuning) > 0 {
		logger.Printf("tuning not found (%s); using snapshot tuning", path)
		return tuning.Parse(snap.Tuning)
	}
	logger.Printf("tuning not found (%s); using defaults", path)
	return tuning.Defaults(), nil
}

func runSnapshotWriter(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, compact bool, idx runtimeIndex, mirror *objstore.Mirror, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			if compact {
				snap = snapshot.Compact(snap)
			}
			path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			logger.Printf("snapshot tick=%d routers=%d networks=%d", snap.Header.Tick, len(snap.Routers), len(snap.Networks))
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			mirror.Enqueue(path)
		}
	}
}

func metricsHandler(w *world.World, idx runtimeIndex, mirror *objstore.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := w.Metrics()
		id := w.ID()

		// Minimal Prometheus exposition format.
		gauge := func(name, help string, v any) {
			fmt.Fprintf(rw, "# HELP routorio_%s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE routorio_%s gauge\n", name)
			fmt.Fprintf(rw, "routorio_%s{world=%q} %v\n", name, id, v)
		}
		counter := func(name, help string, v uint64) {
			fmt.Fprintf(rw, "# HELP routorio_%s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE routorio_%s counter\n", name)
			fmt.Fprintf(rw, "routorio_%s{world=%q} %d\n", name, id, v)
		}

		gauge("world_tick", "Current world tick.", w.CurrentTick())
		gauge("world_routers", "Fusion routers in the world.", m.Routers)
		gauge("world_networks", "Live router networks.", m.Networks)
		gauge("world_blocks", "Placed blocks.", m.Blocks)
		gauge("world_observers", "Connected observers.", m.Observers)
		gauge("world_pending_tasks", "Deferred tasks left after the last tick.", m.PendingTasks)
		gauge("world_step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

		fmt.Fprintf(rw, "# HELP routorio_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE routorio_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "routorio_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "routorio_world_queue_depth{world=%q,queue=%q} %d\n", id, "observer_join", m.QueueDepths.ObserverJoin)
		fmt.Fprintf(rw, "routorio_world_queue_depth{world=%q,queue=%q} %d\n", id, "admin", m.QueueDepths.Admin)

		counter("neutrons_emitted_total", "Neutrons emitted by routers.", m.Emitted)
		counter("neutrons_delivered_total", "Neutrons delivered to consumers.", m.Delivered)
		counter("meltdowns_total", "Router meltdowns.", m.Meltdowns)
		counter("strikes_total", "Strikes that hit a block.", m.Strikes)

		if st, ok := statsOf(idx); ok {
			counter("index_dropped_total", "Index entries dropped on a full queue.", st.Dropped)
			gauge("index_queue_depth", "Index writer backlog.", st.QueueDepth)
		}
		if mirror != nil {
			st := mirror.Stats()
			counter("mirror_uploaded_total", "Files copied to object storage.", st.Uploaded)
			counter("mirror_failed_total", "Files that exhausted upload retries.", st.Failed)
			counter("mirror_dropped_total", "Files dropped on a full mirror queue.", st.Dropped)
			gauge("mirror_queue_depth", "Mirror upload backlog.", st.QueueDepth)
		}
	}
}

func stateHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func snapshotHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		resp, err := w.RequestSnapshot(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err == nil && resp.Err != "" {
			err = fmt.Errorf("%s", resp.Err)
		}
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": resp.Tick, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": resp.Tick})
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
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
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
