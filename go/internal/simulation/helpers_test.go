package simulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/classerp/go/internal/models"
	"github.com/mcdev12/classerp/go/internal/rounds"
	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

const testSimulationID int64 = 7

type recorded struct {
	topic string // empty for BroadcastAll
	event *events.Event
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	records []recorded
	err     error
}

func (b *recordingBroadcaster) BroadcastAll(event *events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, recorded{event: event})
	return b.err
}

func (b *recordingBroadcaster) BroadcastTopic(topic string, event *events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, recorded{topic: topic, event: event})
	return b.err
}

func (b *recordingBroadcaster) snapshot() []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recorded(nil), b.records...)
}

func (b *recordingBroadcaster) ofType(eventType events.EventType) []recorded {
	var out []recorded
	for _, rec := range b.snapshot() {
		if rec.event.Type == eventType {
			out = append(out, rec)
		}
	}
	return out
}

// waitForCount blocks until at least n events of eventType were recorded.
func (b *recordingBroadcaster) waitForCount(t *testing.T, eventType events.EventType, n int) []recorded {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := b.ofType(eventType)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d %s events, got %d", n, eventType, len(got))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newRoundPayload(t *testing.T, rec recorded) events.NewRoundPayload {
	t.Helper()
	payload, err := events.ParsePayload(rec.event)
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	p, ok := payload.(events.NewRoundPayload)
	if !ok {
		t.Fatalf("expected NewRoundPayload, got %T", payload)
	}
	return p
}

func timerUpdatePayload(t *testing.T, rec recorded) events.TimerUpdatePayload {
	t.Helper()
	payload, err := events.ParsePayload(rec.event)
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	p, ok := payload.(events.TimerUpdatePayload)
	if !ok {
		t.Fatalf("expected TimerUpdatePayload, got %T", payload)
	}
	return p
}

// hookedStore wraps the memory store so tests can fail or block round writes.
type hookedStore struct {
	*rounds.MemoryStore
	beforeCreate func(ctx context.Context, simulationID int64, roundNumber int) error
}

func (s *hookedStore) CreateRound(ctx context.Context, simulationID int64, roundNumber int) (*models.Round, error) {
	if s.beforeCreate != nil {
		if err := s.beforeCreate(ctx, simulationID, roundNumber); err != nil {
			return nil, err
		}
	}
	return s.MemoryStore.CreateRound(ctx, simulationID, roundNumber)
}

func newStoreWith(ids ...int64) *rounds.MemoryStore {
	store := rounds.NewMemoryStore()
	for _, id := range ids {
		store.PutSimulation(models.Simulation{ID: id, Name: "Week 3 lab"})
	}
	return store
}

var errStoreDown = errors.New("store unavailable")

type recordingMetrics struct {
	mu      sync.Mutex
	started int
	stops   []StopReason
	rounds  int
	failed  []events.EventType
}

func (m *recordingMetrics) RunStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMetrics) RunStopped(reason StopReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, reason)
}

func (m *recordingMetrics) RoundCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds++
}

func (m *recordingMetrics) BroadcastFailed(eventType events.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, eventType)
}

func (m *recordingMetrics) stopReasons() []StopReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StopReason(nil), m.stops...)
}

type testEngine struct {
	*Engine
	clock       *clockwork.FakeClock
	store       *hookedStore
	broadcaster *recordingBroadcaster
	metrics     *recordingMetrics
}

func newTestEngine(t *testing.T, cfg Config) *testEngine {
	t.Helper()
	store := &hookedStore{MemoryStore: newStoreWith(testSimulationID)}

	clock := clockwork.NewFakeClock()
	broadcaster := &recordingBroadcaster{}
	metrics := &recordingMetrics{}

	engine, err := NewEngine(store, broadcaster, cfg, WithClock(clock), WithMetrics(metrics))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine:      engine,
		clock:       clock,
		store:       store,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

// runFor returns the registered run for id, failing the test if there is none.
func (te *testEngine) runFor(t *testing.T, id int64) *run {
	t.Helper()
	r := te.lookup(id)
	if r == nil {
		t.Fatalf("expected simulation %d to have runtime state", id)
	}
	return r
}

// timersArmed reports which of the run's timers are currently set.
func timersArmed(r *run) (advance, tick bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.advanceTicker != nil, r.tickTicker != nil
}
