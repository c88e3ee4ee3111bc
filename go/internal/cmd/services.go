package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/bus"
	"github.com/mcdev12/classerp/go/internal/controlapi"
	"github.com/mcdev12/classerp/go/internal/dbconfig"
	"github.com/mcdev12/classerp/go/internal/gateway"
	"github.com/mcdev12/classerp/go/internal/models"
	"github.com/mcdev12/classerp/go/internal/rounds"
	"github.com/mcdev12/classerp/go/internal/simulation"
	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

type store interface {
	simulation.RoundStore
	controlapi.SimulationStore
}

type Services struct {
	Engine   *simulation.Engine
	Gateway  *gateway.Service
	Control  *controlapi.App
	Registry *prometheus.Registry

	// Optional, nil when not configured.
	Database  *sql.DB
	Publisher *bus.JetStreamPublisher
	Relay     *bus.Relay
	Listener  *rounds.DeletionListener

	stopGateway context.CancelFunc
	gatewayDone chan struct{}
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Engine → App → REST / RPC handlers, with the gateway and the
	// bus as the engine's broadcast targets.
	services := &Services{Registry: prometheus.NewRegistry()}
	services.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	roundStore, err := services.setupStore(ctx, config)
	if err != nil {
		return nil, err
	}

	// The gateway answers resync requests from the engine, which in turn
	// broadcasts through the gateway.
	var engine *simulation.Engine
	services.Gateway = gateway.NewService(gatewayConfig(config), gateway.ResyncFunc(
		func(simulationID int64, deliver func(events.TimerUpdatePayload)) bool {
			return engine.Resync(simulationID, deliver)
		},
	))

	broadcasters := simulation.MultiBroadcaster{services.Gateway}
	if config.NATS.URL != "" {
		if err := services.setupBus(config, &broadcasters); err != nil {
			services.Close()
			return nil, err
		}
	}

	engine, err = simulation.NewEngine(roundStore, broadcasters, config.SimulationConfig(),
		simulation.WithMetrics(simulation.NewPrometheusMetrics(services.Registry)))
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to create simulation engine: %w", err)
	}
	services.Engine = engine
	services.Control = controlapi.NewApp(engine, roundStore)

	if services.Database != nil && config.Store.ListenForDeletes {
		listenerConfig := rounds.DefaultListenerConfig()
		listenerConfig.DatabaseURL = dbconfig.NewConfigFromEnv().DSN()
		listener, err := rounds.NewDeletionListener(listenerConfig, engine)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Listener = listener
	}

	return services, nil
}

func (s *Services) setupStore(ctx context.Context, config *Config) (store, error) {
	timeout := time.Duration(config.Simulation.StoreTimeoutSec) * time.Second

	switch config.Store.Driver {
	case "postgres":
		database, err := setupDatabase(ctx, dbconfig.NewConfigFromEnv())
		if err != nil {
			return nil, err
		}
		s.Database = database
		return rounds.NewRepository(database, timeout), nil
	case "memory":
		memory := rounds.NewMemoryStore()
		for _, id := range config.Store.DemoSimulations {
			memory.PutSimulation(models.Simulation{ID: id, Name: fmt.Sprintf("Simulation %d", id)})
		}
		log.Warn().Int("simulations", len(config.Store.DemoSimulations)).Msg("using in-memory store, rounds are not durable")
		return memory, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}

func (s *Services) setupBus(config *Config, broadcasters *simulation.MultiBroadcaster) error {
	busConfig := bus.DefaultJetStreamConfig()
	busConfig.URL = config.NATS.URL
	busConfig.StreamName = config.NATS.StreamName

	publisher, err := bus.NewJetStreamPublisher(busConfig)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	s.Publisher = publisher
	*broadcasters = append(*broadcasters, publisher)

	if config.NATS.Relay {
		relay, err := bus.NewRelay(s.Gateway, busConfig)
		if err != nil {
			return fmt.Errorf("failed to create event relay: %w", err)
		}
		s.Relay = relay
	}
	return nil
}

// Run starts the background loops. The relay and the deletion listener stop
// when ctx is cancelled; the gateway keeps running until Close so the
// shutdown SimulationStopped frames still reach clients.
func (s *Services) Run(ctx context.Context) {
	gatewayCtx, stopGateway := context.WithCancel(context.Background())
	s.stopGateway = stopGateway
	s.gatewayDone = make(chan struct{})
	go func() {
		defer close(s.gatewayDone)
		s.Gateway.Start(gatewayCtx)
	}()

	if s.Relay != nil {
		go func() {
			if err := s.Relay.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event relay stopped")
			}
		}()
	}
	if s.Listener != nil {
		go func() {
			if err := s.Listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("deletion listener stopped")
			}
		}()
	}
}

// Close stops every running simulation and releases connections.
func (s *Services) Close() {
	if s.Engine != nil {
		s.Engine.Close()
	}
	if s.stopGateway != nil {
		s.stopGateway()
		<-s.gatewayDone
	}
	if s.Relay != nil {
		if err := s.Relay.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event relay")
		}
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to flush event publisher")
		}
	}
	if s.Database != nil {
		if err := s.Database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}

func gatewayConfig(config *Config) gateway.ConnectionConfig {
	gatewayConfig := gateway.DefaultConnectionConfig()
	if config.Gateway.SendBufferSize > 0 {
		gatewayConfig.SendBufferSize = config.Gateway.SendBufferSize
	}
	if config.Gateway.BroadcastBuffer > 0 {
		gatewayConfig.BroadcastBuffer = config.Gateway.BroadcastBuffer
	}
	return gatewayConfig
}
