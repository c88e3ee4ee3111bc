package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

type fakeResyncer struct {
	running map[int64]int
}

func (f fakeResyncer) Resync(simulationID int64, deliver func(events.TimerUpdatePayload)) bool {
	left, ok := f.running[simulationID]
	if !ok {
		return false
	}
	deliver(onDemandUpdate(simulationID, left))
	return true
}

func onDemandUpdate(simulationID int64, left int) events.TimerUpdatePayload {
	return events.TimerUpdatePayload{
		SimulationID: simulationID,
		TimeLeft:     left,
		Timestamp:    time.Now().UTC(),
		SyncType:     events.SyncTypeOnDemand,
	}
}

func newTestGateway(t *testing.T, resyncer Resyncer) (*Service, *httptest.Server) {
	t.Helper()
	svc := NewService(DefaultConnectionConfig(), resyncer)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return svc, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/simulations" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForStats(t *testing.T, svc *Service, cond func(ConnectionStats) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond(svc.Stats()) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for connection stats, last: %+v", svc.Stats())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event events.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return event
}

func mustEvent(t *testing.T, eventType events.EventType, simulationID int64, payload any) *events.Event {
	t.Helper()
	event, err := events.New(eventType, simulationID, payload, time.Now())
	if err != nil {
		t.Fatalf("events.New failed: %v", err)
	}
	return event
}

func TestBroadcastAudiences(t *testing.T) {
	svc, server := newTestGateway(t, nil)

	subscriber := dial(t, server, "?simulation_id=7")
	bystander := dial(t, server, "")
	waitForStats(t, svc, func(s ConnectionStats) bool {
		return s.TotalConnections == 2 && s.TopicConnections["simulation_7"] == 1
	})

	update := mustEvent(t, events.EventTypeTimerUpdate, 7, events.TimerUpdatePayload{
		SimulationID: 7, TimeLeft: 12, Timestamp: time.Now(), SyncType: events.SyncTypePeriodic,
	})
	if err := svc.BroadcastTopic(events.Topic(7), update); err != nil {
		t.Fatalf("BroadcastTopic failed: %v", err)
	}
	stopped := mustEvent(t, events.EventTypeSimulationStopped, 7, events.SimulationStoppedPayload{SimulationID: 7})
	if err := svc.BroadcastAll(stopped); err != nil {
		t.Fatalf("BroadcastAll failed: %v", err)
	}

	if got := readEvent(t, subscriber); got.ID != update.ID {
		t.Errorf("subscriber first got %s, want the TimerUpdate", got.Type)
	}
	if got := readEvent(t, subscriber); got.ID != stopped.ID {
		t.Errorf("subscriber second got %s, want SimulationStopped", got.Type)
	}
	// Fan-out preserves order, so the bystander's first frame proves it never saw the topic event.
	if got := readEvent(t, bystander); got.ID != stopped.ID {
		t.Errorf("bystander got %s, want only SimulationStopped", got.Type)
	}
}

func TestClientJoinAndLeaveTopic(t *testing.T) {
	svc, server := newTestGateway(t, nil)
	conn := dial(t, server, "")
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.TotalConnections == 1 })

	if err := conn.WriteJSON(ClientMessage{Action: ActionJoinTopic, SimulationID: 3}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.TopicConnections["simulation_3"] == 1 })

	if err := conn.WriteJSON(ClientMessage{Action: ActionLeaveTopic, SimulationID: 3}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.ActiveTopics == 0 })
}

func TestRequestResyncRepliesToRequesterOnly(t *testing.T) {
	svc, server := newTestGateway(t, fakeResyncer{running: map[int64]int{7: 18}})

	requester := dial(t, server, "?simulation_id=7")
	other := dial(t, server, "?simulation_id=7")
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.TopicConnections["simulation_7"] == 2 })

	// Not running: no reply at all.
	if err := requester.WriteJSON(ClientMessage{Action: ActionRequestResync, SimulationID: 99}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if err := requester.WriteJSON(ClientMessage{Action: ActionRequestResync, SimulationID: 7}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	got := readEvent(t, requester)
	if got.Type != events.EventTypeTimerUpdate || got.SimulationID != 7 {
		t.Fatalf("requester got %s for simulation %d", got.Type, got.SimulationID)
	}
	payload, err := events.ParsePayload(&got)
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	update := payload.(events.TimerUpdatePayload)
	if update.SyncType != events.SyncTypeOnDemand || update.TimeLeft != 18 {
		t.Errorf("unexpected resync payload: %+v", update)
	}

	marker := mustEvent(t, events.EventTypeSimulationStopped, 7, events.SimulationStoppedPayload{SimulationID: 7})
	if err := svc.BroadcastAll(marker); err != nil {
		t.Fatalf("BroadcastAll failed: %v", err)
	}
	if got := readEvent(t, other); got.ID != marker.ID {
		t.Errorf("other connection received %s, want only the broadcast", got.Type)
	}
}

// stopRacingResyncer broadcasts a NewRound before delivering and a
// SimulationStopped right after, the way the engine's run lock orders them.
type stopRacingResyncer struct {
	t       *testing.T
	svc     *Service
	round   *events.Event
	stopped *events.Event
}

func (r *stopRacingResyncer) Resync(simulationID int64, deliver func(events.TimerUpdatePayload)) bool {
	if err := r.svc.BroadcastAll(r.round); err != nil {
		r.t.Errorf("BroadcastAll failed: %v", err)
	}
	deliver(onDemandUpdate(simulationID, 30))
	if err := r.svc.BroadcastAll(r.stopped); err != nil {
		r.t.Errorf("BroadcastAll failed: %v", err)
	}
	return true
}

func TestRequestResyncKeepsOrderWithBroadcasts(t *testing.T) {
	resyncer := &stopRacingResyncer{
		t:       t,
		round:   mustEvent(t, events.EventTypeNewRound, 7, events.NewRoundPayload{SimulationID: 7, RoundID: 1, RoundNumber: 1, Duration: 30, StartTime: time.Now()}),
		stopped: mustEvent(t, events.EventTypeSimulationStopped, 7, events.SimulationStoppedPayload{SimulationID: 7}),
	}
	svc, server := newTestGateway(t, resyncer)
	resyncer.svc = svc

	conn := dial(t, server, "")
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.TotalConnections == 1 })

	// Repeat to give a bypassing reply many chances to jump the queue.
	for i := 0; i < 20; i++ {
		if err := conn.WriteJSON(ClientMessage{Action: ActionRequestResync, SimulationID: 7}); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
		want := []events.EventType{events.EventTypeNewRound, events.EventTypeTimerUpdate, events.EventTypeSimulationStopped}
		for _, wantType := range want {
			if got := readEvent(t, conn); got.Type != wantType {
				t.Fatalf("request %d: got %s, want %s", i, got.Type, wantType)
			}
		}
	}
}

func TestSendToUnknownConnectionIsDiscarded(t *testing.T) {
	svc, server := newTestGateway(t, nil)
	conn := dial(t, server, "")
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.TotalConnections == 1 })

	ghost := &Connection{ID: "gone", Send: make(chan []byte, 1)}
	stray := mustEvent(t, events.EventTypeTimerUpdate, 7, onDemandUpdate(7, 3))
	if err := svc.connectionManager.SendTo(ghost, stray); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}
	marker := mustEvent(t, events.EventTypeSimulationStopped, 7, events.SimulationStoppedPayload{SimulationID: 7})
	if err := svc.BroadcastAll(marker); err != nil {
		t.Fatalf("BroadcastAll failed: %v", err)
	}

	if got := readEvent(t, conn); got.ID != marker.ID {
		t.Errorf("connection got %s, want only the broadcast", got.Type)
	}
	if len(ghost.Send) != 0 {
		t.Error("a reply to an unregistered connection must not be delivered")
	}
}

func TestShutdownDeliversQueuedFrames(t *testing.T) {
	config := DefaultConnectionConfig()
	svc := NewService(config, nil)
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	conn := dial(t, server, "")
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.TotalConnections == 1 })

	// Queue before the fan-out loop runs, then start it already cancelled.
	stopped := mustEvent(t, events.EventTypeSimulationStopped, 7, events.SimulationStoppedPayload{SimulationID: 7})
	if err := svc.BroadcastAll(stopped); err != nil {
		t.Fatalf("BroadcastAll failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Start(ctx)

	if got := readEvent(t, conn); got.ID != stopped.ID {
		t.Errorf("got %s, want the queued SimulationStopped", got.Type)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
		t.Errorf("expected a close frame after the queued frames, got %v", err)
	}
	if total := svc.Stats().TotalConnections; total != 0 {
		t.Errorf("TotalConnections = %d after shutdown, want 0", total)
	}
}

func TestBroadcastQueueFull(t *testing.T) {
	config := DefaultConnectionConfig()
	config.BroadcastBuffer = 1
	cm := NewConnectionManager(config, nil)

	event := mustEvent(t, events.EventTypeSimulationStopped, 1, events.SimulationStoppedPayload{SimulationID: 1})
	if err := cm.BroadcastAll(event); err != nil {
		t.Fatalf("first broadcast should be queued: %v", err)
	}
	if err := cm.BroadcastTopic(events.Topic(1), event); !errors.Is(err, ErrBroadcastDropped) {
		t.Fatalf("expected ErrBroadcastDropped, got %v", err)
	}
	if err := cm.BroadcastTopic("", event); err == nil {
		t.Error("expected an error for an empty topic")
	}
}

func TestHandleSimulationConnection_InvalidID(t *testing.T) {
	_, server := newTestGateway(t, nil)

	resp, err := http.Get(server.URL + "/ws/simulations?simulation_id=abc")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConnectionStatsEndpoint(t *testing.T) {
	svc, server := newTestGateway(t, nil)
	dial(t, server, "?simulation_id=4")
	waitForStats(t, svc, func(s ConnectionStats) bool { return s.TotalConnections == 1 })

	resp, err := http.Get(server.URL + "/ws/stats")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var stats ConnectionStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if stats.TotalConnections != 1 || stats.TopicConnections["simulation_4"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
