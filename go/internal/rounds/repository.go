package rounds

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/classerp/go/internal/models"
	"github.com/mcdev12/classerp/go/internal/rounds/db"
	"github.com/mcdev12/classerp/go/internal/sqlutil"
)

// DefaultTimeout bounds every store call when the caller did not set a deadline.
const DefaultTimeout = 5 * time.Second

// Repository is the Postgres-backed round store.
type Repository struct {
	db      *sql.DB
	queries *db.Queries
	timeout time.Duration
}

func NewRepository(database *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Repository{
		db:      database,
		queries: db.New(database),
		timeout: timeout,
	}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Repository) SimulationExists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	exists, err := r.queries.SimulationExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to check simulation %d: %w", id, err)
	}
	return exists, nil
}

func (r *Repository) GetSimulation(ctx context.Context, id int64) (*models.Simulation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row, err := r.queries.GetSimulation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSimulationNotFound
		}
		return nil, fmt.Errorf("failed to get simulation: %w", err)
	}
	return dbSimulationToModel(row), nil
}

func (r *Repository) CreateSimulation(ctx context.Context, name string, settings json.RawMessage) (*models.Simulation, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row, err := r.queries.CreateSimulation(ctx, db.CreateSimulationParams{
		Name:     name,
		Settings: sqlutil.ToNullRawMessage(settings),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation: %w", err)
	}
	return dbSimulationToModel(row), nil
}

func (r *Repository) DeleteSimulation(ctx context.Context, id int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.queries.DeleteSimulation(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete simulation: %w", err)
	}
	if n == 0 {
		return ErrSimulationNotFound
	}
	return nil
}

// CreateRound inserts the round while holding a row lock on its simulation,
// so a concurrent delete cannot leave an orphaned round behind.
func (r *Repository) CreateRound(ctx context.Context, simulationID int64, roundNumber int) (*models.Round, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var created db.Round
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *db.Queries) error {
		if _, err := q.LockSimulation(ctx, simulationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSimulationNotFound
			}
			return fmt.Errorf("lock simulation: %w", err)
		}

		row, err := q.CreateRound(ctx, db.CreateRoundParams{
			SimulationID: simulationID,
			RoundNumber:  int32(roundNumber),
		})
		if err != nil {
			return fmt.Errorf("insert round: %w", err)
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create round %d for simulation %d: %w", roundNumber, simulationID, err)
	}
	return dbRoundToModel(created), nil
}

func (r *Repository) GetRound(ctx context.Context, simulationID int64, roundNumber int) (*models.Round, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	row, err := r.queries.GetRound(ctx, db.GetRoundParams{
		SimulationID: simulationID,
		RoundNumber:  int32(roundNumber),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return dbRoundToModel(row), nil
}

func (r *Repository) ListRounds(ctx context.Context, simulationID int64) ([]*models.Round, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.queries.ListRounds(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	result := make([]*models.Round, len(rows))
	for i, row := range rows {
		result[i] = dbRoundToModel(row)
	}
	return result, nil
}

func dbSimulationToModel(s db.Simulation) *models.Simulation {
	return &models.Simulation{
		ID:        s.ID,
		Name:      s.Name,
		Settings:  sqlutil.FromNullRawMessage(s.Settings),
		CreatedAt: s.CreatedAt,
	}
}

func dbRoundToModel(r db.Round) *models.Round {
	return &models.Round{
		ID:           r.ID,
		SimulationID: r.SimulationID,
		RoundNumber:  int(r.RoundNumber),
		CreatedAt:    r.CreatedAt,
	}
}
