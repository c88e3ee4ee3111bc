package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

type fakeBus struct {
	connected bool
	pending   int
}

func (b fakeBus) IsConnected() bool { return b.connected }
func (b fakeBus) Pending() int      { return b.pending }

func counts(running, connections int) (func() int, func() int) {
	return func() int { return running }, func() int { return connections }
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		opts        []Option
		wantHealthy bool
		wantErrors  int
	}{
		{"no backends", nil, true, 0},
		{"database up", []Option{WithDatabase(fakePinger{})}, true, 0},
		{"database down", []Option{WithDatabase(fakePinger{err: errors.New("refused")})}, false, 1},
		{"bus up", []Option{WithBus(fakeBus{connected: true, pending: 3}, 100)}, true, 0},
		{"bus disconnected", []Option{WithBus(fakeBus{}, 100)}, false, 1},
		{"bus backed up", []Option{WithBus(fakeBus{connected: true, pending: 100}, 100)}, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			running, connections := counts(2, 5)
			status := NewChecker(running, connections, tt.opts...).Check(context.Background())

			if status.Healthy != tt.wantHealthy {
				t.Errorf("Healthy = %v, want %v", status.Healthy, tt.wantHealthy)
			}
			if len(status.Errors) != tt.wantErrors {
				t.Errorf("Errors = %v, want %d entries", status.Errors, tt.wantErrors)
			}
			if status.RunningSimulations != 2 || status.Connections != 5 {
				t.Errorf("unexpected counts: %+v", status)
			}
		})
	}
}

func TestServeHTTP(t *testing.T) {
	running, connections := counts(1, 0)

	rec := httptest.NewRecorder()
	NewChecker(running, connections).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !status.Healthy || status.DatabaseConnected != nil || status.NATSConnected != nil {
		t.Errorf("unexpected status: %+v", status)
	}

	rec = httptest.NewRecorder()
	NewChecker(running, connections, WithDatabase(fakePinger{err: errors.New("down")})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
}
