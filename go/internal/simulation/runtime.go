package simulation

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// run is the in-memory clock state of one running simulation. All fields
// below mu are guarded by it.
type run struct {
	simulationID int64

	mu             sync.Mutex
	stopped        bool
	currentRound   int // 0 until the first round is persisted
	roundStartedAt time.Time

	advanceTicker clockwork.Ticker
	advanceDone   chan struct{}

	tickTicker clockwork.Ticker
	tickDone   chan struct{}
	tickGen    uint64
}

// RunStatus is a point-in-time view of a running simulation.
type RunStatus struct {
	SimulationID   int64     `json:"simulationId"`
	CurrentRound   int       `json:"currentRound"`
	RoundStartedAt time.Time `json:"roundStartedAt"`
	TimeLeft       int       `json:"timeLeft"`
}

// cancelTimers stops both tickers and releases their goroutines. Callers hold r.mu.
func (r *run) cancelTimers() {
	if r.advanceTicker != nil {
		r.advanceTicker.Stop()
		close(r.advanceDone)
		r.advanceTicker, r.advanceDone = nil, nil
	}
	r.cancelTick()
}

// cancelTick stops the current tick ticker. Callers hold r.mu.
func (r *run) cancelTick() {
	if r.tickTicker != nil {
		r.tickTicker.Stop()
		close(r.tickDone)
		r.tickTicker, r.tickDone = nil, nil
	}
}

// remaining computes whole seconds left in the current round from wall-clock
// elapsed time. Callers hold r.mu.
func (r *run) remaining(now time.Time, roundSeconds int) int {
	if r.roundStartedAt.IsZero() {
		return 0
	}
	elapsed := int(now.Sub(r.roundStartedAt) / time.Second)
	left := roundSeconds - elapsed
	if left < 0 {
		return 0
	}
	if left > roundSeconds {
		return roundSeconds
	}
	return left
}
