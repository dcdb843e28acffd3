package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"gladekeep.gg/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	moveSchema := compile("move.schema.json")
	tuneSchema := compile("tune.schema.json")
	stateSchema := compile("state.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"hud1"
	}`), &hello)
	validate(helloSchema, hello)

	var move any
	_ = json.Unmarshal([]byte(`{
	  "type":"MOVE",
	  "protocol_version":"1.0",
	  "pos":[512.25,-64.0]
	}`), &move)
	validate(moveSchema, move)

	var tune any
	_ = json.Unmarshal([]byte(`{
	  "type":"TUNE",
	  "protocol_version":"1.0",
	  "field":"active_radius",
	  "delta":-1
	}`), &tune)
	validate(tuneSchema, tune)

	// STATE must validate as the server actually emits it.
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            42,
		Observer:        [2]float64{512.25, -64},
		ObserverChunk:   [2]int{4, -1},
		Counts:          protocol.ChunkCounts{Pending: 0, Resident: 25, PendingUnload: 1},
		Streaming: protocol.StreamingParams{
			ActiveRadius: 2, Hysteresis: 1, LoadCapPerFrame: 4, UnloadCapPerFrame: 4,
		},
		LastStep: protocol.StepCounts{Loads: 4, DeferredLoads: 21},
		Totals:   protocol.StepCounts{Loads: 30, Unloads: 5},
		StepMS:   0.21,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal STATE: %v", err)
	}
	var state any
	if err := json.Unmarshal(b, &state); err != nil {
		t.Fatalf("unmarshal STATE: %v", err)
	}
	validate(stateSchema, state)
}

func TestSchemas_RejectBadTune(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "tune.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var bad any
	_ = json.Unmarshal([]byte(`{
	  "type":"TUNE",
	  "protocol_version":"1.0",
	  "field":"chunk_size",
	  "delta":1
	}`), &bad)
	if err := s.Validate(bad); err == nil {
		t.Fatalf("non-tunable field accepted by schema")
	}
}
