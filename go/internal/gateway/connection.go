package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	topics map[string]struct{} // guarded by Manager.mu
}

// Client actions accepted over the socket.
const (
	ActionJoinTopic     = "joinTopic"
	ActionLeaveTopic    = "leaveTopic"
	ActionRequestResync = "requestResync"
)

// ClientMessage is a command sent by a client.
type ClientMessage struct {
	Action       string `json:"action"`
	SimulationID int64  `json:"simulationId"`
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes topic membership and resync requests.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("ignoring malformed client message")
		return
	}

	logger := log.With().
		Str("connection_id", c.ID).
		Str("action", msg.Action).
		Int64("simulation_id", msg.SimulationID).
		Logger()

	switch msg.Action {
	case ActionJoinTopic:
		c.Manager.Join(c, events.Topic(msg.SimulationID))
	case ActionLeaveTopic:
		c.Manager.Leave(c, events.Topic(msg.SimulationID))
	case ActionRequestResync:
		c.resync(msg.SimulationID)
	default:
		logger.Warn().Msg("unknown client action")
		return
	}
	logger.Debug().Msg("handled client message")
}

// resync replies to this connection only. Nothing is sent when the
// simulation is not running.
func (c *Connection) resync(simulationID int64) {
	if c.Manager.resyncer == nil {
		return
	}
	ok := c.Manager.resyncer.Resync(simulationID, func(payload events.TimerUpdatePayload) {
		event, err := events.New(events.EventTypeTimerUpdate, simulationID, payload, payload.Timestamp)
		if err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to build resync event")
			return
		}
		if err := c.Manager.SendTo(c, event); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to deliver resync")
		}
	})
	if !ok {
		log.Debug().
			Str("connection_id", c.ID).
			Int64("simulation_id", simulationID).
			Msg("resync requested for a simulation that is not running")
	}
}
