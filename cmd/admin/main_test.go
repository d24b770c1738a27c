package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeltaNedas/routorio-old/internal/persistence/indexdb"
	persistlog "github.com/DeltaNedas/routorio-old/internal/persistence/log"
	"github.com/DeltaNedas/routorio-old/internal/protocol"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

func TestReadAudit_Filters(t *testing.T) {
	dir := t.TempDir()
	al := persistlog.NewAuditLogger(dir)
	entries := []world.AuditEntry{
		{Tick: 1, Actor: "bot", Action: world.AuditSetBlock, Pos: [2]int{0, 0}, To: 1},
		{Tick: 5, Actor: "WORLD", Action: world.AuditMeltdown, Pos: [2]int{2, 3}, From: 1},
		{Tick: 9, Actor: "WORLD", Action: world.AuditMeltdown, Pos: [2]int{40, 40}, From: 1},
	}
	for _, e := range entries {
		require.NoError(t, al.WriteAudit(e))
	}
	require.NoError(t, al.Close())

	all, err := readAudit(dir, auditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	melt, err := readAudit(dir, auditFilter{Action: world.AuditMeltdown})
	require.NoError(t, err)
	require.Len(t, melt, 2)

	lo, hi, err := parseArea("5,5:-1,-1")
	require.NoError(t, err)
	require.Equal(t, [2]int{-1, -1}, lo)
	require.Equal(t, [2]int{5, 5}, hi)
	near, err := readAudit(dir, auditFilter{Action: world.AuditMeltdown, Area: true, Min: lo, Max: hi})
	require.NoError(t, err)
	require.Len(t, near, 1)
	require.Equal(t, uint64(5), near[0].Tick)

	window, err := readAudit(dir, auditFilter{Since: 2, To: 8})
	require.NoError(t, err)
	require.Len(t, window, 1)

	_, _, err = parseArea("1,2")
	require.Error(t, err)
	_, err = parsePos("a,b")
	require.Error(t, err)
}

func TestPrintInspect(t *testing.T) {
	w, err := world.New(world.WorldConfig{ID: "world_i"}, catalogs.Defaults())
	require.NoError(t, err)
	place := func(id string, x int, block string) world.CommandEnvelope {
		return world.CommandEnvelope{Actor: "bot", Cmd: protocol.CmdMsg{
			Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: id, Op: protocol.OpPlace, Pos: [2]int{x, 0}, Block: block,
		}}
	}
	w.StepOnce([]world.CommandEnvelope{place("a", 0, "FUSION_ROUTER"), place("b", 1, "FUSION_ROUTER")})
	snap := w.ExportSnapshot(w.CurrentTick() - 1)

	var out bytes.Buffer
	require.NoError(t, printInspect(&out, snap, true))
	s := out.String()
	require.Contains(t, s, "world=world_i")
	require.Contains(t, s, "routers=2 networks=1")
	require.Equal(t, 2, strings.Count(s, "\nrouter "))

	snap.Routers[0].RecordVersion = 1
	require.Error(t, printInspect(&bytes.Buffer{}, snap, true))
	require.NoError(t, printInspect(&bytes.Buffer{}, snap, false))
}

func TestRunQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	require.NoError(t, err)
	_ = idx.WriteTick(world.TickLogEntry{Tick: 3, Digest: "d3"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "WORLD", Action: world.AuditMeltdown, Pos: [2]int{1, 1}, Reason: "OVERHEAT"})
	require.NoError(t, idx.Close())

	db, err := indexdb.OpenReadOnly(path)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runQuery(ctx, &out, db, "digest", "", 3, 10))
	require.Contains(t, out.String(), `"digest":"d3"`)

	out.Reset()
	require.NoError(t, runQuery(ctx, &out, db, "meltdowns", "", 0, 10))
	require.Contains(t, out.String(), "OVERHEAT")

	require.ErrorContains(t, runQuery(ctx, &out, db, "digest", "", 4, 10), "not indexed")
	require.ErrorContains(t, runQuery(ctx, &out, db, "players", "", 0, 10), "unknown query")
}

func TestAdminCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/admin/v1/snapshot" && r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.Equal(t, 0, adminCall(&out, http.MethodPost, srv.URL+"/", "/admin/v1/snapshot", time.Second))
	require.Contains(t, out.String(), `"ok": true`)

	out.Reset()
	require.Equal(t, 1, adminCall(&out, http.MethodGet, srv.URL, "/admin/v1/snapshot", time.Second))
}
