package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/DeltaNedas/routorio-old/internal/observerproto"
	"github.com/DeltaNedas/routorio-old/internal/protocol"
	"github.com/DeltaNedas/routorio-old/internal/sim/catalogs"
	"github.com/DeltaNedas/routorio-old/internal/sim/tuning"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

func startWorld(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	w, err := world.New(world.WorldConfig{ID: "world_obs", Tuning: tuning.Defaults()}, catalogs.Defaults())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	s := NewServer(w, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", s.WSHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return w, srv
}

func TestBootstrap(t *testing.T) {
	_, srv := startWorld(t)

	resp, err := http.Get(srv.URL + "/admin/v1/observer/bootstrap")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var boot observerproto.BootstrapResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&boot))
	require.Equal(t, "world_obs", boot.WorldID)
	require.Equal(t, observerproto.Version, boot.ProtocolVersion)
	require.Equal(t, tuning.Defaults().Fusion.ProductionTime, boot.WorldParams.ProductionTime)
	require.Contains(t, boot.BlockPalette, "FUSION_ROUTER")
}

func TestWS_StreamsRoutersInRadius(t *testing.T) {
	w, srv := startWorld(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/admin/v1/observer/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, Center: [2]int{0, 0}, Radius: 4}
	b, _ := json.Marshal(sub)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))

	for i, pos := range [][2]int{{1, 0}, {20, 0}} {
		w.Inbox() <- world.CommandEnvelope{Actor: "test", Cmd: protocol.CmdMsg{
			Type: protocol.TypeCmd, ProtocolVersion: protocol.Version,
			ID: string(rune('a' + i)), Op: protocol.OpPlace, Pos: pos, Block: "FUSION_ROUTER",
		}}
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg observerproto.TickMsg
		require.NoError(t, json.Unmarshal(raw, &msg))
		require.Equal(t, "TICK", msg.Type)
		if len(msg.Routers) == 0 {
			continue
		}
		require.Len(t, msg.Routers, 1)
		require.Equal(t, [2]int{1, 0}, msg.Routers[0].Pos)
		require.Len(t, msg.Networks, 1)
		require.Equal(t, 1, msg.Networks[0].Members)
		return
	}
	t.Fatal("no TICK with routers before deadline")
}

func TestWS_RejectsNonSubscribe(t *testing.T) {
	_, srv := startWorld(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/admin/v1/observer/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "err=%v", err)
}

func TestIsLoopbackRemote(t *testing.T) {
	require.True(t, isLoopbackRemote("127.0.0.1:5555"))
	require.True(t, isLoopbackRemote("[::1]:5555"))
	require.False(t, isLoopbackRemote("10.0.0.2:5555"))
	require.False(t, isLoopbackRemote("garbage"))
}
