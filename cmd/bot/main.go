package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DeltaNedas/routorio-old/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "client name")
		originX = flag.Int("x", 0, "line origin x")
		originY = flag.Int("y", 0, "line origin y")
		length  = flag.Int("routers", 6, "routers in the line")
		fuel    = flag.Float64("fuel", 20, "fuel added to the head router")
		every   = flag.Duration("strike_every", 5*time.Second, "interval between shocked strikes (0 disables)")
		damage  = flag.Float64("damage", 15, "strike damage")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        64,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	msgs := make(chan []byte, 64)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			msgs <- msg
		}
	}()

	var strikes <-chan time.Time
	if *every > 0 {
		t := time.NewTicker(*every)
		defer t.Stop()
		strikes = t.C
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var seq int

	for {
		select {
		case <-stop:
			return
		case <-strikes:
			seq++
			x := *originX + r.Intn(max(*length, 1))
			cmd := strikeCmd(fmt.Sprintf("S%d", seq), x, *originY, *damage)
			if err := conn.WriteJSON(cmd); err != nil {
				logger.Printf("send STRIKE: %v", err)
				return
			}
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(msg, &w); err != nil {
					continue
				}
				logger.Printf("WELCOME client_id=%s world=%s tick=%d tick_rate=%d palette=%d",
					w.ClientID, w.WorldID, w.Tick, w.WorldParams.TickRateHz, len(w.Palette))
				for _, cmd := range buildScript(*originX, *originY, *length, *fuel) {
					if err := conn.WriteJSON(cmd); err != nil {
						logger.Printf("send %s: %v", cmd.Op, err)
						return
					}
				}

			case protocol.TypeAck:
				var ack protocol.AckMsg
				if err := json.Unmarshal(msg, &ack); err != nil {
					continue
				}
				if ack.OK {
					logger.Printf("ACK %s tick=%d", ack.ID, ack.Tick)
				} else {
					logger.Printf("ACK %s tick=%d %s: %s", ack.ID, ack.Tick, ack.Code, ack.Message)
				}
			}
		}
	}
}

// buildScript lays out a power node, a horizontal line of fusion routers
// starting at (x, y), and a container at the far end, then fuels the head.
func buildScript(x, y, routers int, fuel float64) []protocol.CmdMsg {
	var out []protocol.CmdMsg
	n := 0
	place := func(px int, block string) {
		n++
		out = append(out, cmdMsg(fmt.Sprintf("P%d", n), protocol.OpPlace, px, y, func(c *protocol.CmdMsg) { c.Block = block }))
	}
	place(x-1, "POWER_NODE")
	for i := 0; i < routers; i++ {
		place(x+i, "FUSION_ROUTER")
	}
	place(x+routers, "CONTAINER")
	if fuel > 0 && routers > 0 {
		out = append(out, cmdMsg("F1", protocol.OpFuel, x, y, func(c *protocol.CmdMsg) { c.Amount = fuel }))
	}
	return out
}

func strikeCmd(id string, x, y int, damage float64) protocol.CmdMsg {
	return cmdMsg(id, protocol.OpStrike, x, y, func(c *protocol.CmdMsg) {
		c.Damage = damage
		c.Status = protocol.StatusShocked
	})
}

func cmdMsg(id, op string, x, y int, opt func(*protocol.CmdMsg)) protocol.CmdMsg {
	c := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Op:              op,
		Pos:             [2]int{x, y},
	}
	if opt != nil {
		opt(&c)
	}
	return c
}
