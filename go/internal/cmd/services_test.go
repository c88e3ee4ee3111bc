package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

func newMemoryServices(t *testing.T, ids ...int64) (*Config, *Services) {
	t.Helper()
	config := defaultConfig()
	config.Store.Driver = "memory"
	config.Store.DemoSimulations = ids

	services, err := setupServices(context.Background(), config)
	if err != nil {
		t.Fatalf("setupServices failed: %v", err)
	}
	return config, services
}

func readFrame(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event events.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return event
}

func TestServicesCloseDeliversShutdownStop(t *testing.T) {
	config, services := newMemoryServices(t, 7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.Run(ctx)

	server := httptest.NewServer(setupServer(config, services).Handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/simulations"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for services.Gateway.Stats().TotalConnections != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the connection to register")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if !services.Engine.Start(ctx, 7) {
		t.Fatal("expected Start to succeed")
	}
	if got := readFrame(t, conn); got.Type != events.EventTypeNewRound {
		t.Fatalf("first frame = %s, want NewRound", got.Type)
	}
	if got := readFrame(t, conn); got.Type != events.EventTypeSimulationStarted {
		t.Fatalf("second frame = %s, want SimulationStarted", got.Type)
	}

	// Signal first, then close, the way main shuts down.
	cancel()
	services.Close()

	if got := readFrame(t, conn); got.Type != events.EventTypeSimulationStopped || got.SimulationID != 7 {
		t.Errorf("shutdown frame = %s for %d, want SimulationStopped for 7", got.Type, got.SimulationID)
	}
}
