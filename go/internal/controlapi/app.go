package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/models"
	"github.com/mcdev12/classerp/go/internal/rounds"
)

var (
	ErrSimulationNotFound = errors.New("simulation not found")
	ErrNotRunning         = errors.New("simulation is not running")
	ErrStartFailed        = errors.New("simulation could not be started")
	ErrInvalidRequest     = errors.New("invalid request")
)

// App holds the control logic shared by the REST and RPC surfaces.
type App struct {
	engine SimulationEngine
	store  SimulationStore
}

func NewApp(engine SimulationEngine, store SimulationStore) *App {
	return &App{engine: engine, store: store}
}

// StartSimulation starts the clock and returns the freshly created round 1.
func (a *App) StartSimulation(ctx context.Context, simulationID int64) (*StartSimulationResponse, error) {
	if !a.engine.Start(ctx, simulationID) {
		if _, err := a.GetSimulation(ctx, simulationID); err != nil {
			if errors.Is(err, ErrSimulationNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrStartFailed, err)
		}
		return nil, ErrStartFailed
	}

	round, err := a.engine.CurrentRound(ctx, simulationID)
	if err != nil {
		// The simulation is running; only the echo of round 1 is missing.
		log.Warn().Err(err).Int64("simulation_id", simulationID).Msg("failed to load first round after start")
	}
	return &StartSimulationResponse{
		Success:      true,
		SimulationID: simulationID,
		CurrentRound: round,
	}, nil
}

func (a *App) StopSimulation(simulationID int64) (*StopSimulationResponse, error) {
	if !a.engine.Stop(simulationID) {
		return nil, ErrNotRunning
	}
	return &StopSimulationResponse{Success: true, SimulationID: simulationID}, nil
}

func (a *App) GetSimulationStatus(ctx context.Context, simulationID int64) (*SimulationStatus, error) {
	cfg := a.engine.Config()
	status := &SimulationStatus{
		SimulationID:  simulationID,
		IsRunning:     a.engine.IsRunning(simulationID),
		RoundDuration: cfg.RoundDurationSeconds(),
		MaxRounds:     cfg.MaxRounds,
		TimeLeft:      a.engine.RemainingTime(simulationID),
	}
	if !status.IsRunning {
		return status, nil
	}

	round, err := a.engine.CurrentRound(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current round: %w", err)
	}
	status.CurrentRound = round
	return status, nil
}

func (a *App) RunningSimulations() *RunningSimulationsResponse {
	return &RunningSimulationsResponse{Simulations: a.engine.Running()}
}

func (a *App) GetSimulation(ctx context.Context, simulationID int64) (*models.Simulation, error) {
	sim, err := a.store.GetSimulation(ctx, simulationID)
	if err != nil {
		return nil, storeError(err)
	}
	return sim, nil
}

func (a *App) CreateSimulation(ctx context.Context, req CreateSimulationRequest) (*models.Simulation, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if len(req.Settings) > 0 && !json.Valid(req.Settings) {
		return nil, fmt.Errorf("%w: settings must be valid JSON", ErrInvalidRequest)
	}

	sim, err := a.store.CreateSimulation(ctx, name, req.Settings)
	if err != nil {
		return nil, err
	}
	log.Info().Int64("simulation_id", sim.ID).Str("name", sim.Name).Msg("simulation created")
	return sim, nil
}

// DeleteSimulation removes the simulation with its rounds and stops its clock
// if it was running.
func (a *App) DeleteSimulation(ctx context.Context, simulationID int64) (*DeleteSimulationResponse, error) {
	if err := a.store.DeleteSimulation(ctx, simulationID); err != nil {
		return nil, storeError(err)
	}
	wasRunning := a.engine.Stop(simulationID)

	log.Info().
		Int64("simulation_id", simulationID).
		Bool("was_running", wasRunning).
		Msg("simulation deleted")
	return &DeleteSimulationResponse{Success: true, SimulationID: simulationID, WasRunning: wasRunning}, nil
}

// ListRounds returns every persisted round of the simulation, oldest first.
// A restarted simulation repeats round numbers.
func (a *App) ListRounds(ctx context.Context, simulationID int64) (*ListRoundsResponse, error) {
	if _, err := a.GetSimulation(ctx, simulationID); err != nil {
		return nil, err
	}
	list, err := a.store.ListRounds(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	if list == nil {
		list = []*models.Round{}
	}
	return &ListRoundsResponse{SimulationID: simulationID, Rounds: list}, nil
}

func storeError(err error) error {
	if errors.Is(err, rounds.ErrSimulationNotFound) {
		return ErrSimulationNotFound
	}
	return err
}
