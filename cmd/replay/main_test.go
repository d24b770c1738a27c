package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	persistlog "github.com/DeltaNedas/routorio-old/internal/persistence/log"
	"github.com/DeltaNedas/routorio-old/internal/protocol"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

func cmd(id, op string, x, y int) world.CommandEnvelope {
	return world.CommandEnvelope{Actor: "bot", Cmd: protocol.CmdMsg{
		Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: id, Op: op, Pos: [2]int{x, y},
	}}
}

func placeCmd(id string, x, y int, block string) world.CommandEnvelope {
	c := cmd(id, protocol.OpPlace, x, y)
	c.Cmd.Block = block
	return c
}

func TestReplay_VerifiesRecordedDigests(t *testing.T) {
	dir := t.TempDir()
	cats := catalogs.Defaults()
	tune := tuning.Defaults()
	tune.Fusion.HeatRate = 0.01

	w, err := world.New(world.WorldConfig{ID: "world_r", Tuning: tune}, cats)
	require.NoError(t, err)
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)

	fuel := cmd("f1", protocol.OpFuel, 0, 0)
	fuel.Cmd.Amount = 5
	w.StepOnce([]world.CommandEnvelope{
		placeCmd("p1", -1, 0, "POWER_NODE"),
		placeCmd("p2", 0, 0, "FUSION_ROUTER"),
		placeCmd("p3", 1, 0, "FUSION_ROUTER"),
		placeCmd("p4", 2, 0, "CONTAINER"),
		fuel,
	})
	for i := 0; i < 3; i++ {
		w.StepOnce(nil)
	}
	snap := w.ExportSnapshot(w.CurrentTick() - 1)

	strike := cmd("s1", protocol.OpStrike, 1, 0)
	strike.Cmd.Damage = 40
	strike.Cmd.Status = protocol.StatusShocked
	w.StepOnce(nil)
	w.StepOnce([]world.CommandEnvelope{strike, cmd("r1", protocol.OpRemove, 2, 0)})
	w.StepOnce(nil)
	w.StepOnce(nil)
	require.NoError(t, tl.Close())

	files, err := persistlog.Files(filepath.Join(dir, "events"), "events")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	w2, err := worldFromSnapshot(snap, cats)
	require.NoError(t, err)
	require.Equal(t, uint64(4), w2.CurrentTick())
	checked, err := replay(w2, files, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(4), checked)

	w3, err := worldFromSnapshot(snap, cats)
	require.NoError(t, err)
	checked, err = replay(w3, files, 0, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(2), checked)
}

func TestReplay_DetectsDivergence(t *testing.T) {
	dir := t.TempDir()
	cats := catalogs.Defaults()

	w, err := world.New(world.WorldConfig{ID: "world_r"}, cats)
	require.NoError(t, err)
	snap := w.ExportSnapshot(0)
	w.StepOnce(nil) // tick 0 is covered by the snapshot

	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)
	w.StepOnce([]world.CommandEnvelope{placeCmd("p1", 0, 0, "FUSION_ROUTER")})
	require.NoError(t, tl.Close())

	files, err := persistlog.Files(filepath.Join(dir, "events"), "events")
	require.NoError(t, err)

	// A world that already holds a wall at the router's tile cannot reproduce tick 1.
	w2, err := worldFromSnapshot(snap, cats)
	require.NoError(t, err)
	require.NoError(t, w2.ApplyLayout(world.Layout{Blocks: []world.LayoutBlock{{Block: "WALL", At: &[2]int{0, 0}}}}))
	_, err = replay(w2, files, 0, 0)
	require.ErrorContains(t, err, "digest mismatch at tick 1")
}
