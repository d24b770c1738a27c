package main

import (
	"encoding/json"
	"testing"

	"github.com/DeltaNedas/routorio-old/internal/protocol"
)

func TestBuildScript(t *testing.T) {
	cmds := buildScript(10, -2, 3, 5)
	if len(cmds) != 6 {
		t.Fatalf("len=%d want=6", len(cmds))
	}
	if cmds[0].Block != "POWER_NODE" || cmds[0].Pos != [2]int{9, -2} {
		t.Fatalf("first=%+v", cmds[0])
	}
	if cmds[4].Block != "CONTAINER" || cmds[4].Pos != [2]int{13, -2} {
		t.Fatalf("container=%+v", cmds[4])
	}
	if last := cmds[5]; last.Op != protocol.OpFuel || last.Amount != 5 || last.Pos != [2]int{10, -2} {
		t.Fatalf("fuel=%+v", last)
	}

	seen := map[string]bool{}
	for _, c := range cmds {
		if seen[c.ID] {
			t.Fatalf("duplicate id %s", c.ID)
		}
		seen[c.ID] = true
		raw, _ := json.Marshal(c)
		if err := protocol.Validate(protocol.TypeCmd, raw); err != nil {
			t.Fatalf("%s invalid: %v", c.ID, err)
		}
	}

	if got := buildScript(0, 0, 2, 0); len(got) != 4 {
		t.Fatalf("no-fuel script len=%d want=4", len(got))
	}
}

func TestStrikeCmd_Valid(t *testing.T) {
	c := strikeCmd("S1", 1, 2, 15)
	if c.Status != protocol.StatusShocked || c.Damage != 15 {
		t.Fatalf("strike=%+v", c)
	}
	raw, _ := json.Marshal(c)
	if err := protocol.Validate(protocol.TypeCmd, raw); err != nil {
		t.Fatalf("invalid: %v", err)
	}
}
