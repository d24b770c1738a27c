package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/DeltaNedas/routorio-old/internal/protocol"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

func startServer(t *testing.T) *websocket.Conn {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "world_test", Tuning: tuning.Defaults()}, catalogs.Defaults())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, nil).Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func read[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	var v T
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	send(t, conn, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test"})
	return read[protocol.WelcomeMsg](t, conn)
}

func place(id string, x, y int, block string) protocol.CmdMsg {
	return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: id, Op: protocol.OpPlace, Pos: [2]int{x, y}, Block: block}
}

func TestServer_HelloWelcome(t *testing.T) {
	conn := startServer(t)
	wel := hello(t, conn)

	require.Equal(t, protocol.TypeWelcome, wel.Type)
	require.Equal(t, "C1", wel.ClientID)
	require.Equal(t, "world_test", wel.WorldID)
	require.Equal(t, 60, wel.WorldParams.TickRateHz)
	require.Contains(t, wel.Palette, "FUSION_ROUTER")
	require.Equal(t, len(wel.Palette), wel.BlockPalette.Count)
	require.NotEmpty(t, wel.BlockPalette.Digest)
}

func TestServer_CommandsAreAcked(t *testing.T) {
	conn := startServer(t)
	hello(t, conn)

	send(t, conn, place("p1", 0, 0, "FUSION_ROUTER"))
	ack := read[protocol.AckMsg](t, conn)
	require.Equal(t, "p1", ack.ID)
	require.True(t, ack.OK, "ack=%+v", ack)

	send(t, conn, place("p2", 0, 0, "CONTAINER"))
	ack = read[protocol.AckMsg](t, conn)
	require.Equal(t, "p2", ack.ID)
	require.False(t, ack.OK)
	require.Equal(t, protocol.ErrConflict, ack.Code)
}

func TestServer_RejectsInvalidCommands(t *testing.T) {
	conn := startServer(t)
	hello(t, conn)

	// PLACE without a block fails schema validation.
	bad := place("b1", 1, 1, "")
	send(t, conn, bad)
	ack := read[protocol.AckMsg](t, conn)
	require.Equal(t, "b1", ack.ID)
	require.Equal(t, protocol.ErrProtoBadRequest, ack.Code)

	wrongVersion := place("b2", 1, 1, "WALL")
	wrongVersion.ProtocolVersion = "0.9"
	send(t, conn, wrongVersion)
	ack = read[protocol.AckMsg](t, conn)
	require.Equal(t, "b2", ack.ID)
	require.Equal(t, protocol.ErrProtoBadRequest, ack.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ack = read[protocol.AckMsg](t, conn)
	require.Equal(t, protocol.ErrProtoBadRequest, ack.Code)
}

func TestServer_RequiresHello(t *testing.T) {
	conn := startServer(t)
	send(t, conn, place("p1", 0, 0, "FUSION_ROUTER"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "err=%v", err)
}
