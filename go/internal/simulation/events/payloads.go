package events

import (
	"time"
)

// Event payload types shared by the engine, the gateway and the bus.
// Every payload is a flat object; timestamps are UTC.

// SyncType tells clients why a TimerUpdate was sent.
type SyncType string

const (
	SyncTypePeriodic SyncType = "periodic"
	SyncTypeOnDemand SyncType = "onDemand"
)

// SimulationStartedPayload is the payload for a SimulationStarted event
type SimulationStartedPayload struct {
	SimulationID  int64     `json:"simulationId"`
	RoundDuration int       `json:"roundDuration" jsonschema:"minimum=1"` // seconds
	StartTime     time.Time `json:"startTime"`
}

// SimulationStoppedPayload is the payload for a SimulationStopped event
type SimulationStoppedPayload struct {
	SimulationID int64 `json:"simulationId"`
}

// NewRoundPayload is the payload for a NewRound event
type NewRoundPayload struct {
	SimulationID int64     `json:"simulationId"`
	RoundID      int64     `json:"roundId"`
	RoundNumber  int       `json:"roundNumber" jsonschema:"minimum=1"`
	Duration     int       `json:"duration" jsonschema:"minimum=1"` // seconds
	StartTime    time.Time `json:"startTime"`
}

// TimerUpdatePayload is the payload for a TimerUpdate event
type TimerUpdatePayload struct {
	SimulationID int64     `json:"simulationId"`
	TimeLeft     int       `json:"timeLeft" jsonschema:"minimum=0"` // seconds
	Timestamp    time.Time `json:"timestamp"`
	SyncType     SyncType  `json:"syncType" jsonschema:"enum=periodic,enum=onDemand"`
}
