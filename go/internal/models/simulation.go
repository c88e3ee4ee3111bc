package models

import (
	"encoding/json"
	"time"
)

// Simulation is a top-level classroom scenario that advances through rounds
// while it is running.
type Simulation struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Round is one fixed-duration production period of a simulation.
type Round struct {
	ID           int64     `json:"id"`
	SimulationID int64     `json:"simulationId"`
	RoundNumber  int       `json:"roundNumber"` // 1-based
	CreatedAt    time.Time `json:"createdAt"`
}
