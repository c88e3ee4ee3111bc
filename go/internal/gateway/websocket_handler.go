package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// WebSocketHandler handles WebSocket upgrade requests for simulation clients
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleSimulationConnection upgrades the request. The optional simulation_id
// query parameter joins that simulation's topic right away.
func (h *WebSocketHandler) HandleSimulationConnection(w http.ResponseWriter, r *http.Request) {
	var topics []string
	if raw := r.URL.Query().Get("simulation_id"); raw != "" {
		simulationID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || simulationID <= 0 {
			http.Error(w, "invalid simulation_id", http.StatusBadRequest)
			return
		}
		topics = append(topics, events.Topic(simulationID))
	}

	// On failure the upgrader has already written the HTTP error.
	if err := h.connectionManager.UpgradeConnection(w, r, topics...); err != nil {
		log.Error().
			Err(err).
			Strs("topics", topics).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/simulations", h.HandleSimulationConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
