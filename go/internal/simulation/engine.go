package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/models"
	"github.com/mcdev12/classerp/go/internal/rounds"
	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

var (
	errRunStopped         = errors.New("simulation run was stopped")
	errSimulationVanished = errors.New("simulation no longer exists")
)

// Engine is the round-based simulation clock. It owns one run per started
// simulation, advances rounds on a fixed cadence and pushes lifecycle and
// timer events to the broadcaster.
type Engine struct {
	store       RoundStore
	broadcaster Broadcaster
	metrics     Metrics
	clock       clockwork.Clock
	cfg         Config

	mu     sync.Mutex // guards runs and closed only
	runs   map[int64]*run
	closed bool

	wg sync.WaitGroup // timer goroutines
}

type Option func(*Engine)

// WithClock swaps the wall clock, e.g. for a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a clock engine. The config is validated here and is
// immutable for the engine's lifetime.
func NewEngine(store RoundStore, broadcaster Broadcaster, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	e := &Engine{
		store:       store,
		broadcaster: broadcaster,
		metrics:     NoOpMetrics{},
		clock:       clockwork.NewRealClock(),
		cfg:         cfg,
		runs:        make(map[int64]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's immutable configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start begins the clock for a simulation. Round 1 is persisted and announced
// before Start returns. A simulation that is already running is stopped and
// started over from round 1. Start returns false if the simulation does not
// exist or its first round could not be created.
func (e *Engine) Start(ctx context.Context, simulationID int64) bool {
	logger := log.With().Int64("simulation_id", simulationID).Logger()

	exists, err := e.simulationExists(ctx, simulationID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to verify simulation before start")
		return false
	}
	if !exists {
		logger.Warn().Msg("cannot start simulation: not found")
		return false
	}

	r := &run{simulationID: simulationID}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger.Warn().Msg("cannot start simulation: engine is closed")
		return false
	}
	prev := e.runs[simulationID]
	e.runs[simulationID] = r
	e.mu.Unlock()

	if prev != nil {
		logger.Info().Msg("simulation already running, restarting")
		e.teardown(prev, StopReasonRestarted)
	}
	e.metrics.RunStarted()

	if err := e.advance(ctx, r); err != nil {
		if errors.Is(err, errRunStopped) {
			logger.Info().Msg("simulation stopped while its first round was being created")
			return false
		}
		logger.Error().Err(err).Msg("failed to create first round, stopping simulation")
		e.stopRun(r, stopReasonFor(err))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}

	r.advanceTicker = e.clock.NewTicker(e.cfg.RoundDuration)
	r.advanceDone = make(chan struct{})
	e.wg.Add(1)
	go e.advanceLoop(r, r.advanceTicker, r.advanceDone)

	e.tryBroadcastAll(events.EventTypeSimulationStarted, simulationID, events.SimulationStartedPayload{
		SimulationID:  simulationID,
		RoundDuration: e.cfg.RoundDurationSeconds(),
		StartTime:     e.clock.Now().UTC(),
	})

	logger.Info().
		Dur("round_duration", e.cfg.RoundDuration).
		Int("max_rounds", e.cfg.MaxRounds).
		Msg("simulation started")
	return true
}

// Stop cancels both timers of a running simulation, drops its runtime state
// and announces the stop. It returns false, without broadcasting anything,
// when the simulation is not running.
func (e *Engine) Stop(simulationID int64) bool {
	e.mu.Lock()
	r := e.runs[simulationID]
	if r != nil {
		delete(e.runs, simulationID)
	}
	e.mu.Unlock()

	if r == nil {
		return false
	}
	return e.teardown(r, StopReasonRequested)
}

// IsRunning reports whether runtime state exists for the simulation.
func (e *Engine) IsRunning(simulationID int64) bool {
	return e.lookup(simulationID) != nil
}

// RemainingTime returns the whole seconds left in the current round, or 0
// when the simulation is not running. It is derived from wall-clock time, so
// missed ticks never skew it.
func (e *Engine) RemainingTime(simulationID int64) int {
	r := e.lookup(simulationID)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining(e.clock.Now(), e.cfg.RoundDurationSeconds())
}

// CurrentRound re-reads the current round from the store. It returns nil when
// the simulation is not running or has no round yet.
func (e *Engine) CurrentRound(ctx context.Context, simulationID int64) (*models.Round, error) {
	r := e.lookup(simulationID)
	if r == nil {
		return nil, nil
	}
	r.mu.Lock()
	number := r.currentRound
	r.mu.Unlock()
	if number == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	round, err := e.store.GetRound(ctx, simulationID, number)
	if err != nil {
		return nil, fmt.Errorf("failed to load round %d of simulation %d: %w", number, simulationID, err)
	}
	return round, nil
}

// Resync hands an on-demand timer update for one client to deliver. deliver
// runs under the run's lock, so it is ordered after every event already
// broadcast for the run and before its SimulationStopped; it must not block or
// call back into the engine. Resync returns false, without calling deliver,
// when the simulation is not running.
func (e *Engine) Resync(simulationID int64, deliver func(events.TimerUpdatePayload)) bool {
	r := e.lookup(simulationID)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	now := e.clock.Now()
	deliver(events.TimerUpdatePayload{
		SimulationID: simulationID,
		TimeLeft:     r.remaining(now, e.cfg.RoundDurationSeconds()),
		Timestamp:    now.UTC(),
		SyncType:     events.SyncTypeOnDemand,
	})
	return true
}

// Running lists every running simulation ordered by id.
func (e *Engine) Running() []RunStatus {
	e.mu.Lock()
	runs := make([]*run, 0, len(e.runs))
	for _, r := range e.runs {
		runs = append(runs, r)
	}
	e.mu.Unlock()

	now := e.clock.Now()
	statuses := make([]RunStatus, 0, len(runs))
	for _, r := range runs {
		r.mu.Lock()
		if !r.stopped {
			statuses = append(statuses, RunStatus{
				SimulationID:   r.simulationID,
				CurrentRound:   r.currentRound,
				RoundStartedAt: r.roundStartedAt,
				TimeLeft:       r.remaining(now, e.cfg.RoundDurationSeconds()),
			})
		}
		r.mu.Unlock()
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].SimulationID < statuses[j].SimulationID })
	return statuses
}

// Close stops every running simulation and waits for the timer goroutines to
// exit. Start fails after Close.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	runs := make([]*run, 0, len(e.runs))
	for id, r := range e.runs {
		runs = append(runs, r)
		delete(e.runs, id)
	}
	e.mu.Unlock()

	for _, r := range runs {
		e.teardown(r, StopReasonShutdown)
	}
	e.wg.Wait()
	log.Info().Int("stopped", len(runs)).Msg("simulation engine closed")
}

func (e *Engine) lookup(simulationID int64) *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[simulationID]
}

// stopRun removes r if it is still the registered run for its simulation and
// tears it down.
func (e *Engine) stopRun(r *run, reason StopReason) bool {
	e.mu.Lock()
	if e.runs[r.simulationID] == r {
		delete(e.runs, r.simulationID)
	}
	e.mu.Unlock()
	return e.teardown(r, reason)
}

// teardown cancels the run's timers and announces the stop. The broadcast
// happens under r.mu, so no event of this run can follow it.
func (e *Engine) teardown(r *run, reason StopReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stopped = true
	r.cancelTimers()

	e.metrics.RunStopped(reason)
	e.tryBroadcastAll(events.EventTypeSimulationStopped, r.simulationID, events.SimulationStoppedPayload{
		SimulationID: r.simulationID,
	})

	log.Info().
		Int64("simulation_id", r.simulationID).
		Int("round_number", r.currentRound).
		Str("reason", string(reason)).
		Msg("simulation stopped")
	return true
}

func (e *Engine) simulationExists(ctx context.Context, simulationID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	return e.store.SimulationExists(ctx, simulationID)
}

func stopReasonFor(err error) StopReason {
	if errors.Is(err, errSimulationVanished) {
		return StopReasonVanished
	}
	return StopReasonPersistenceFailure
}

// errorsIsNotFound reports whether the store rejected a write because the
// simulation row is gone.
func errorsIsNotFound(err error) bool {
	return errors.Is(err, rounds.ErrSimulationNotFound)
}
