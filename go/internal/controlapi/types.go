package controlapi

import (
	"context"
	"encoding/json"

	"github.com/mcdev12/classerp/go/internal/models"
	"github.com/mcdev12/classerp/go/internal/simulation"
)

// SimulationEngine is what the control API needs from the clock engine.
type SimulationEngine interface {
	Start(ctx context.Context, simulationID int64) bool
	Stop(simulationID int64) bool
	IsRunning(simulationID int64) bool
	RemainingTime(simulationID int64) int
	CurrentRound(ctx context.Context, simulationID int64) (*models.Round, error)
	Running() []simulation.RunStatus
	Config() simulation.Config
}

// SimulationStore is what the control API needs from persistence. Unknown
// simulations are reported as rounds.ErrSimulationNotFound.
type SimulationStore interface {
	GetSimulation(ctx context.Context, id int64) (*models.Simulation, error)
	CreateSimulation(ctx context.Context, name string, settings json.RawMessage) (*models.Simulation, error)
	DeleteSimulation(ctx context.Context, id int64) error
	ListRounds(ctx context.Context, simulationID int64) ([]*models.Round, error)
}

type CreateSimulationRequest struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type DeleteSimulationResponse struct {
	Success      bool  `json:"success"`
	SimulationID int64 `json:"simulationId"`
	WasRunning   bool  `json:"wasRunning"`
}

type ListRoundsResponse struct {
	SimulationID int64           `json:"simulationId"`
	Rounds       []*models.Round `json:"rounds"`
}

type StartSimulationRequest struct {
	SimulationID int64 `json:"simulationId"`
}

type StartSimulationResponse struct {
	Success      bool          `json:"success"`
	SimulationID int64         `json:"simulationId"`
	CurrentRound *models.Round `json:"currentRound,omitempty"`
}

type StopSimulationRequest struct {
	SimulationID int64 `json:"simulationId"`
}

type StopSimulationResponse struct {
	Success      bool  `json:"success"`
	SimulationID int64 `json:"simulationId"`
}

type GetSimulationStatusRequest struct {
	SimulationID int64 `json:"simulationId"`
}

// SimulationStatus is the status view returned by both surfaces.
type SimulationStatus struct {
	SimulationID  int64         `json:"simulationId"`
	IsRunning     bool          `json:"isRunning"`
	CurrentRound  *models.Round `json:"currentRound"`
	RoundDuration int           `json:"roundDuration"`
	MaxRounds     int           `json:"maxRounds"`
	TimeLeft      int           `json:"timeLeft"`
}

type RunningSimulationsResponse struct {
	Simulations []simulation.RunStatus `json:"simulations"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
