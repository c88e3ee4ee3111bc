package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

func TestBuildSchemaCoversPayloadFields(t *testing.T) {
	schema := buildSchema(new(events.TimerUpdatePayload), "TimerUpdate", "test")

	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, field := range []string{"simulationId", "timeLeft", "timestamp", "syncType"} {
		if !strings.Contains(string(data), field) {
			t.Errorf("schema is missing %q: %s", field, data)
		}
	}
}

func TestWriteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "NewRound.schema.json")
	if err := writeSchema(path, buildSchema(new(events.NewRoundPayload), "NewRound", "test")); err != nil {
		t.Fatalf("writeSchema failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should have been renamed away")
	}
}

func TestEveryEventTypeHasPayload(t *testing.T) {
	for _, eventType := range []events.EventType{
		events.EventTypeSimulationStarted,
		events.EventTypeSimulationStopped,
		events.EventTypeNewRound,
		events.EventTypeTimerUpdate,
	} {
		if _, ok := payloads[eventType]; !ok {
			t.Errorf("no payload registered for %s", eventType)
		}
	}
}
