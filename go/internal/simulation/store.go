package simulation

import (
	"context"

	"github.com/mcdev12/classerp/go/internal/models"
)

// RoundStore is what the engine needs from persistence.
type RoundStore interface {
	SimulationExists(ctx context.Context, id int64) (bool, error)
	// CreateRound must return the durable round id before it returns.
	CreateRound(ctx context.Context, simulationID int64, roundNumber int) (*models.Round, error)
	// GetRound returns nil, nil when the round does not exist.
	GetRound(ctx context.Context, simulationID int64, roundNumber int) (*models.Round, error)
}
