package rounds

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mcdev12/classerp/go/internal/models"
)

// MemoryStore is an in-process round store for tests and database-less demo runs.
type MemoryStore struct {
	mu          sync.RWMutex
	simulations map[int64]models.Simulation
	rounds      []models.Round
	nextSimID   int64
	nextRoundID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		simulations: make(map[int64]models.Simulation),
		nextSimID:   1,
		nextRoundID: 1,
	}
}

// PutSimulation inserts or replaces a simulation with an explicit id.
func (s *MemoryStore) PutSimulation(sim models.Simulation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sim.CreatedAt.IsZero() {
		sim.CreatedAt = time.Now().UTC()
	}
	s.simulations[sim.ID] = sim
	if sim.ID >= s.nextSimID {
		s.nextSimID = sim.ID + 1
	}
}

func (s *MemoryStore) SimulationExists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.simulations[id]
	return ok, nil
}

func (s *MemoryStore) GetSimulation(ctx context.Context, id int64) (*models.Simulation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sim, ok := s.simulations[id]
	if !ok {
		return nil, ErrSimulationNotFound
	}
	return &sim, nil
}

func (s *MemoryStore) CreateSimulation(ctx context.Context, name string, settings json.RawMessage) (*models.Simulation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sim := models.Simulation{
		ID:        s.nextSimID,
		Name:      name,
		Settings:  settings,
		CreatedAt: time.Now().UTC(),
	}
	s.nextSimID++
	s.simulations[sim.ID] = sim
	return &sim, nil
}

// DeleteSimulation removes the simulation and cascades to its rounds.
func (s *MemoryStore) DeleteSimulation(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.simulations[id]; !ok {
		return ErrSimulationNotFound
	}
	delete(s.simulations, id)

	kept := s.rounds[:0]
	for _, r := range s.rounds {
		if r.SimulationID != id {
			kept = append(kept, r)
		}
	}
	s.rounds = kept
	return nil
}

func (s *MemoryStore) CreateRound(ctx context.Context, simulationID int64, roundNumber int) (*models.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.simulations[simulationID]; !ok {
		return nil, ErrSimulationNotFound
	}
	r := models.Round{
		ID:           s.nextRoundID,
		SimulationID: simulationID,
		RoundNumber:  roundNumber,
		CreatedAt:    time.Now().UTC(),
	}
	s.nextRoundID++
	s.rounds = append(s.rounds, r)
	return &r, nil
}

// GetRound returns the most recently created row for (simulationID, roundNumber).
func (s *MemoryStore) GetRound(ctx context.Context, simulationID int64, roundNumber int) (*models.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.rounds) - 1; i >= 0; i-- {
		r := s.rounds[i]
		if r.SimulationID == simulationID && r.RoundNumber == roundNumber {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListRounds(ctx context.Context, simulationID int64) ([]*models.Round, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Round
	for _, r := range s.rounds {
		if r.SimulationID == simulationID {
			r := r
			result = append(result, &r)
		}
	}
	return result, nil
}
