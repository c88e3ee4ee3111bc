package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// payloads maps each realtime event to the payload carried in its data field.
var payloads = map[events.EventType]any{
	events.EventTypeSimulationStarted: new(events.SimulationStartedPayload),
	events.EventTypeSimulationStopped: new(events.SimulationStoppedPayload),
	events.EventTypeNewRound:          new(events.NewRoundPayload),
	events.EventTypeTimerUpdate:       new(events.TimerUpdatePayload),
}

func main() {
	var outDir string
	flag.StringVar(&outDir, "out", "", "directory to write the event schemas to")
	flag.Parse()

	if outDir == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	frame := buildSchema(new(events.Event), "Simulation event", "Frame sent over the realtime channel")
	if err := writeSchema(filepath.Join(outDir, "event.schema.json"), frame); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write frame schema: %v\n", err)
		os.Exit(1)
	}

	for eventType, payload := range payloads {
		schema := buildSchema(payload, string(eventType), fmt.Sprintf("Data of a %s event", eventType))
		path := filepath.Join(outDir, string(eventType)+".schema.json")
		if err := writeSchema(path, schema); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s schema: %v\n", eventType, err)
			os.Exit(1)
		}
	}
	fmt.Printf("wrote %d schemas to %s\n", len(payloads)+1, outDir)
}

func buildSchema(v any, title, description string) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	schema.Title = title
	schema.Description = description
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
