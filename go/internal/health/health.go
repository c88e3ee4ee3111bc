package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BusConnection is satisfied by the event bus publisher.
type BusConnection interface {
	IsConnected() bool
	Pending() int
}

type Status struct {
	Healthy            bool     `json:"healthy"`
	RunningSimulations int      `json:"running_simulations"`
	Connections        int      `json:"connections"`
	DatabaseConnected  *bool    `json:"database_connected,omitempty"`
	NATSConnected      *bool    `json:"nats_connected,omitempty"`
	PendingPublishes   int      `json:"pending_publishes"`
	Errors             []string `json:"errors"`
}

// Checker reports on the server and the backends it was built with. Nil
// backends are left out of the report.
type Checker struct {
	database Pinger
	bus      BusConnection

	running     func() int
	connections func() int

	// maxPending marks the bus unhealthy once this many publishes are unacked.
	maxPending int
	timeout    time.Duration
}

type Option func(*Checker)

func WithDatabase(db Pinger) Option {
	return func(c *Checker) { c.database = db }
}

func WithBus(bus BusConnection, maxPending int) Option {
	return func(c *Checker) {
		c.bus = bus
		c.maxPending = maxPending
	}
}

func NewChecker(running, connections func() int, opts ...Option) *Checker {
	c := &Checker{
		running:     running,
		connections: connections,
		timeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Checker) Check(ctx context.Context) Status {
	status := Status{
		Healthy:            true,
		RunningSimulations: c.running(),
		Connections:        c.connections(),
		Errors:             []string{},
	}

	if c.database != nil {
		connected := true
		if err := c.database.PingContext(ctx); err != nil {
			connected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
		status.DatabaseConnected = &connected
	}

	if c.bus != nil {
		connected := c.bus.IsConnected()
		status.NATSConnected = &connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
		status.PendingPublishes = c.bus.Pending()
		if c.maxPending > 0 && status.PendingPublishes >= c.maxPending {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("high pending publish count: %d", status.PendingPublishes))
		}
	}

	return status
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	status := c.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}
