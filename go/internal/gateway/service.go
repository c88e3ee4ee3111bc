package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// Service bundles the connection manager and its HTTP handlers. It is the
// realtime broadcast channel the simulation engine pushes to.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

func NewService(config ConnectionConfig, resyncer Resyncer) *Service {
	cm := NewConnectionManager(config, resyncer)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
	}
}

// Start runs the broadcast loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting simulation gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("simulation gateway stopped")
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("simulation gateway routes registered")
}

func (s *Service) BroadcastAll(event *events.Event) error {
	return s.connectionManager.BroadcastAll(event)
}

func (s *Service) BroadcastTopic(topic string, event *events.Event) error {
	return s.connectionManager.BroadcastTopic(topic, event)
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
