package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DeltaNedas/routorio-old/internal/protocol"
	"github.com/DeltaNedas/routorio-old/internal/sim/world"
)

// Server accepts command clients on /v1/ws: HELLO, then any number of CMD
// messages, each answered by exactly one ACK.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		clientID, acks := s.handshake(conn)
		if clientID == "" {
			return
		}
		s.logf("client connected id=%s remote=%s", clientID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ack := <-acks:
					if err := writeJSON(conn, ack); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if ack, ok := s.handleMessage(clientID, msg, acks); !ok {
				pushAck(acks, ack)
			}
		}
		s.logf("client disconnected id=%s", clientID)
	}
}

// handleMessage forwards a valid CMD to the world. When the message is
// rejected before reaching the world it returns the ACK to send and false.
func (s *Server) handleMessage(clientID string, msg []byte, acks chan protocol.AckMsg) (protocol.AckMsg, bool) {
	tick := s.world.CurrentTick()

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewAck("", tick, protocol.ErrProtoBadRequest, "invalid json"), false
	}
	var cmd protocol.CmdMsg
	_ = json.Unmarshal(msg, &cmd)
	if base.Type != protocol.TypeCmd {
		return protocol.NewAck(cmd.ID, tick, protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected message type %q", base.Type)), false
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewAck(cmd.ID, tick, protocol.ErrProtoBadRequest, "bad protocol_version"), false
	}
	if err := protocol.Validate(protocol.TypeCmd, msg); err != nil {
		return protocol.NewAck(cmd.ID, tick, protocol.ErrProtoBadRequest, err.Error()), false
	}

	select {
	case s.world.Inbox() <- world.CommandEnvelope{Actor: clientID, Cmd: cmd, Resp: acks}:
		return protocol.AckMsg{}, true
	default:
		return protocol.NewAck(cmd.ID, tick, protocol.ErrWorldBusy, "world inbox full"), false
	}
}

func (s *Server) handshake(conn *websocket.Conn) (clientID string, acks chan protocol.AckMsg) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, "bad HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}
	acks = make(chan protocol.AckMsg, maxQ)
	clientID = fmt.Sprintf("C%d", s.nextID.Add(1))

	if err := writeJSON(conn, s.welcome(clientID)); err != nil {
		return "", nil
	}
	return clientID, acks
}

func (s *Server) welcome(clientID string) protocol.WelcomeMsg {
	cfg := s.world.Config()
	cats := s.world.Catalogs()
	palette := s.world.BlockPalette()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        clientID,
		WorldID:         s.world.ID(),
		Tick:            s.world.CurrentTick(),
		WorldParams: protocol.WorldParams{
			TickRateHz:   cfg.Tuning.TickRateHz,
			DeltaPerTick: cfg.Tuning.DeltaPerTick,
			BoundaryR:    cfg.Tuning.WorldBoundaryR,
			TuningDigest: cfg.TuningDigest,
		},
		BlockPalette: protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(palette)},
		Palette:      palette,
	}
}

// pushAck never blocks; an ACK that does not fit is dropped.
func pushAck(ch chan protocol.AckMsg, ack protocol.AckMsg) {
	select {
	case ch <- ack:
	default:
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
