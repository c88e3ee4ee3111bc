package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSimulations(t *testing.T) {
	sims, err := loadSimulations(filepath.Join("..", "..", "assets", "simulations.json"))
	if err != nil {
		t.Fatalf("loadSimulations failed: %v", err)
	}
	if len(sims) == 0 {
		t.Fatal("expected at least one simulation in the snapshot")
	}
	seen := make(map[int64]bool)
	for _, s := range sims {
		if seen[s.ID] {
			t.Errorf("duplicate simulation id %d", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestLoadSimulationsRejectsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sims.json")
	if err := os.WriteFile(path, []byte(`[{"id": 4}]`), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := loadSimulations(path); err == nil {
		t.Error("expected an error for a simulation without a name")
	}
}

func TestSettingsArg(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		want     any
	}{
		{"absent", "", nil},
		{"null", "null", nil},
		{"object", `{"course":"OPS-310"}`, `{"course":"OPS-310"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := settingsArg([]byte(tt.settings)); got != tt.want {
				t.Errorf("settingsArg(%q) = %v, want %v", tt.settings, got, tt.want)
			}
		})
	}
}
