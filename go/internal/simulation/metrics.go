package simulation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// StopReason records why a simulation left the running state.
type StopReason string

const (
	StopReasonRequested          StopReason = "requested"
	StopReasonRestarted          StopReason = "restarted"
	StopReasonVanished           StopReason = "vanished"
	StopReasonPersistenceFailure StopReason = "persistence_failure"
	StopReasonMaxRounds          StopReason = "max_rounds"
	StopReasonShutdown           StopReason = "shutdown"
)

// Metrics defines what the engine reports about itself
type Metrics interface {
	RunStarted()
	RunStopped(reason StopReason)
	RoundCreated()
	BroadcastFailed(eventType events.EventType)
}

// NoOpMetrics is used when metrics aren't needed
type NoOpMetrics struct{}

func (NoOpMetrics) RunStarted()                                {}
func (NoOpMetrics) RunStopped(reason StopReason)               {}
func (NoOpMetrics) RoundCreated()                              {}
func (NoOpMetrics) BroadcastFailed(eventType events.EventType) {}

// PrometheusMetrics implements Metrics with Prometheus collectors
type PrometheusMetrics struct {
	running           prometheus.Gauge
	roundsCreated     prometheus.Counter
	stops             *prometheus.CounterVec
	broadcastFailures *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "classerp",
			Subsystem: "simulation",
			Name:      "running",
			Help:      "Number of simulations whose clock is currently running.",
		}),
		roundsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "classerp",
			Subsystem: "simulation",
			Name:      "rounds_created_total",
			Help:      "Rounds persisted and announced by the simulation clock.",
		}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classerp",
			Subsystem: "simulation",
			Name:      "stops_total",
			Help:      "Simulation stops by reason.",
		}, []string{"reason"}),
		broadcastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "classerp",
			Subsystem: "simulation",
			Name:      "broadcast_failures_total",
			Help:      "Realtime broadcasts that could not be delivered, by event type.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.running, m.roundsCreated, m.stops, m.broadcastFailures)
	return m
}

func (m *PrometheusMetrics) RunStarted() {
	m.running.Inc()
}

func (m *PrometheusMetrics) RunStopped(reason StopReason) {
	m.running.Dec()
	m.stops.WithLabelValues(string(reason)).Inc()
}

func (m *PrometheusMetrics) RoundCreated() {
	m.roundsCreated.Inc()
}

func (m *PrometheusMetrics) BroadcastFailed(eventType events.EventType) {
	m.broadcastFailures.WithLabelValues(string(eventType)).Inc()
}
