package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// advance persists the next round and, if the run is still live afterwards,
// makes it current, restarts the tick timer and announces it. The store is
// called without holding r.mu so Stop never waits on persistence.
func (e *Engine) advance(ctx context.Context, r *run) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return errRunStopped
	}
	next := r.currentRound + 1
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	exists, err := e.store.SimulationExists(ctx, r.simulationID)
	if err != nil {
		return fmt.Errorf("failed to verify simulation %d: %w", r.simulationID, err)
	}
	if !exists {
		return errSimulationVanished
	}

	round, err := e.store.CreateRound(ctx, r.simulationID, next)
	if err != nil {
		if errorsIsNotFound(err) {
			return fmt.Errorf("%w: %w", errSimulationVanished, err)
		}
		return fmt.Errorf("failed to create round %d: %w", next, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		// The row stays; nobody is told about it.
		log.Debug().
			Int64("simulation_id", r.simulationID).
			Int("round_number", round.RoundNumber).
			Msg("discarding round created after simulation stopped")
		return errRunStopped
	}

	now := e.clock.Now()
	r.currentRound = round.RoundNumber
	r.roundStartedAt = now
	e.metrics.RoundCreated()
	e.replaceTickTicker(r)

	e.tryBroadcastAll(events.EventTypeNewRound, r.simulationID, events.NewRoundPayload{
		SimulationID: r.simulationID,
		RoundID:      round.ID,
		RoundNumber:  round.RoundNumber,
		Duration:     e.cfg.RoundDurationSeconds(),
		StartTime:    now.UTC(),
	})

	log.Info().
		Int64("simulation_id", r.simulationID).
		Int("round_number", round.RoundNumber).
		Int64("round_id", round.ID).
		Msg("new round started")
	return nil
}

// advanceLoop drives the repeating advance timer of one run.
func (e *Engine) advanceLoop(r *run, ticker clockwork.Ticker, done <-chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			e.onAdvanceTimer(r)
		}
	}
}

func (e *Engine) onAdvanceTimer(r *run) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Int64("simulation_id", r.simulationID).
				Interface("panic", rec).
				Msg("recovered panic in round advance, stopping simulation")
			e.stopRun(r, StopReasonPersistenceFailure)
		}
	}()

	if e.cfg.StopAtMaxRounds {
		r.mu.Lock()
		reached := r.currentRound >= e.cfg.MaxRounds
		r.mu.Unlock()
		if reached {
			log.Info().
				Int64("simulation_id", r.simulationID).
				Int("max_rounds", e.cfg.MaxRounds).
				Msg("max rounds reached")
			e.stopRun(r, StopReasonMaxRounds)
			return
		}
	}

	err := e.advance(context.Background(), r)
	switch {
	case err == nil, errors.Is(err, errRunStopped):
	case errors.Is(err, errSimulationVanished):
		log.Warn().Err(err).Int64("simulation_id", r.simulationID).Msg("simulation vanished during run, stopping")
		e.stopRun(r, StopReasonVanished)
	default:
		log.Error().Err(err).Int64("simulation_id", r.simulationID).Msg("round advance failed, stopping simulation")
		e.stopRun(r, StopReasonPersistenceFailure)
	}
}

// replaceTickTicker cancels the current tick timer and arms a fresh one, so a
// tick never fires for a round boundary that already passed. Callers hold r.mu.
func (e *Engine) replaceTickTicker(r *run) {
	r.cancelTick()
	r.tickGen++
	r.tickTicker = e.clock.NewTicker(e.cfg.TickInterval)
	r.tickDone = make(chan struct{})

	e.wg.Add(1)
	go e.tickLoop(r, r.tickTicker, r.tickDone, r.tickGen)
}

func (e *Engine) tickLoop(r *run, ticker clockwork.Ticker, done <-chan struct{}, gen uint64) {
	defer e.wg.Done()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			e.tick(r, gen)
		}
	}
}

// tick pushes the periodic remaining-time update to the simulation topic. It
// never panics and never stops the simulation.
func (e *Engine) tick(r *run, gen uint64) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Int64("simulation_id", r.simulationID).
				Interface("panic", rec).
				Msg("recovered panic in timer tick")
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.tickGen != gen {
		return
	}

	now := e.clock.Now()
	e.tryBroadcastTopic(events.EventTypeTimerUpdate, r.simulationID, events.TimerUpdatePayload{
		SimulationID: r.simulationID,
		TimeLeft:     r.remaining(now, e.cfg.RoundDurationSeconds()),
		Timestamp:    now.UTC(),
		SyncType:     events.SyncTypePeriodic,
	})
}

func (e *Engine) tryBroadcastAll(eventType events.EventType, simulationID int64, payload any) {
	e.tryBroadcast(eventType, simulationID, payload, func(event *events.Event) error {
		return e.broadcaster.BroadcastAll(event)
	})
}

func (e *Engine) tryBroadcastTopic(eventType events.EventType, simulationID int64, payload any) {
	topic := events.Topic(simulationID)
	e.tryBroadcast(eventType, simulationID, payload, func(event *events.Event) error {
		return e.broadcaster.BroadcastTopic(topic, event)
	})
}

// tryBroadcast delivers one event best-effort. Failures are logged and
// counted, never returned.
func (e *Engine) tryBroadcast(eventType events.EventType, simulationID int64, payload any, send func(*events.Event) error) {
	logger := log.With().
		Int64("simulation_id", simulationID).
		Str("event_type", string(eventType)).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			e.metrics.BroadcastFailed(eventType)
			logger.Error().Interface("panic", rec).Msg("recovered panic while broadcasting")
		}
	}()

	event, err := events.New(eventType, simulationID, payload, e.clock.Now())
	if err != nil {
		e.metrics.BroadcastFailed(eventType)
		logger.Error().Err(err).Msg("failed to build event")
		return
	}
	if err := send(event); err != nil {
		e.metrics.BroadcastFailed(eventType)
		logger.Warn().Err(err).Msg("failed to broadcast event")
		return
	}
	logger.Debug().Str("event_id", event.ID).Msg("event broadcast")
}
