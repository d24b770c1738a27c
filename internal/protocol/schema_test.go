package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/DeltaNedas/routorio-old/internal/protocol"
)

func TestValidate_Samples(t *testing.T) {
	valid := map[string]string{
		protocol.TypeHello: `{"type":"HELLO","protocol_version":"1.0","client_name":"bot1","max_queue":16}`,
		protocol.TypeCmd:   `{"type":"CMD","protocol_version":"1.0","id":"c1","op":"PLACE","pos":[3,-2],"block":"FUSION_ROUTER"}`,
	}
	for typ, raw := range valid {
		if err := protocol.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("%s: validate: %v", typ, err)
		}
	}

	strike := protocol.CmdMsg{
		Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: "c2",
		Op: protocol.OpStrike, Pos: [2]int{1, 1}, Damage: 40, Status: protocol.StatusShocked,
	}
	raw, _ := json.Marshal(strike)
	if err := protocol.Validate(protocol.TypeCmd, raw); err != nil {
		t.Fatalf("marshalled strike: %v", err)
	}
}

func TestValidate_RejectsBadCommands(t *testing.T) {
	cases := map[string]string{
		"unknown op":         `{"type":"CMD","protocol_version":"1.0","id":"c1","op":"EXPLODE","pos":[0,0]}`,
		"place without kind": `{"type":"CMD","protocol_version":"1.0","id":"c1","op":"PLACE","pos":[0,0]}`,
		"strike no damage":   `{"type":"CMD","protocol_version":"1.0","id":"c1","op":"STRIKE","pos":[0,0]}`,
		"negative fuel":      `{"type":"CMD","protocol_version":"1.0","id":"c1","op":"FUEL","pos":[0,0],"amount":-1}`,
		"3d pos":             `{"type":"CMD","protocol_version":"1.0","id":"c1","op":"REMOVE","pos":[0,0,0]}`,
		"fractional pos":     `{"type":"CMD","protocol_version":"1.0","id":"c1","op":"REMOVE","pos":[0.5,0]}`,
		"missing id":         `{"type":"CMD","protocol_version":"1.0","op":"REMOVE","pos":[0,0]}`,
		"not json":           `{"type":`,
	}
	for name, raw := range cases {
		if err := protocol.Validate(protocol.TypeCmd, []byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidate_UnknownTypePasses(t *testing.T) {
	if err := protocol.Validate("PING", []byte(`{}`)); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
