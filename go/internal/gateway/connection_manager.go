package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// ErrBroadcastDropped is returned when the broadcast queue is full.
var ErrBroadcastDropped = errors.New("broadcast queue full, message dropped")

// Resyncer answers on-demand timer resync requests from clients. It calls
// deliver, which never blocks, in order with the simulation's own broadcasts
// and reports false when the simulation is not running.
type Resyncer interface {
	Resync(simulationID int64, deliver func(events.TimerUpdatePayload)) bool
}

// ResyncFunc adapts a plain function to Resyncer.
type ResyncFunc func(simulationID int64, deliver func(events.TimerUpdatePayload)) bool

func (f ResyncFunc) Resync(simulationID int64, deliver func(events.TimerUpdatePayload)) bool {
	return f(simulationID, deliver)
}

// ConnectionManager manages WebSocket connections for simulation events.
// Every connection receives audience-wide broadcasts; topic broadcasts only
// reach connections that joined the topic.
type ConnectionManager struct {
	connections map[*Connection]struct{}
	topics      map[string]map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	resyncer Resyncer

	broadcastCh chan broadcastMessage
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	Topic string      // empty means every connection
	Conn  *Connection // set for a reply to a single connection
	Event *events.Event
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. resyncer may be nil, in
// which case resync requests are ignored.
func NewConnectionManager(config ConnectionConfig, resyncer Resyncer) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[*Connection]struct{}),
		topics:      make(map[string]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		resyncer:    resyncer,
		broadcastCh: make(chan broadcastMessage, config.BroadcastBuffer),
	}
}

// Start fans queued broadcasts out to connections until ctx is done. On
// shutdown it delivers whatever is still queued and then closes every
// connection once its pending frames are written.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.drain()
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

func (cm *ConnectionManager) drain() {
	for {
		select {
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		default:
			return
		}
	}
}

// closeAll unregisters every connection. Closing Send lets each write pump
// flush its buffer and send a close frame.
func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// BroadcastAll queues event for every connected client.
func (cm *ConnectionManager) BroadcastAll(event *events.Event) error {
	return cm.enqueue(broadcastMessage{Event: event})
}

// BroadcastTopic queues event for clients subscribed to topic.
func (cm *ConnectionManager) BroadcastTopic(topic string, event *events.Event) error {
	if topic == "" {
		return fmt.Errorf("broadcast %s: empty topic", event.Type)
	}
	return cm.enqueue(broadcastMessage{Topic: topic, Event: event})
}

func (cm *ConnectionManager) enqueue(message broadcastMessage) error {
	select {
	case cm.broadcastCh <- message:
		return nil
	default:
		log.Warn().
			Str("event_type", string(message.Event.Type)).
			Str("topic", message.Topic).
			Msg("broadcast channel full, dropping message")
		return ErrBroadcastDropped
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins the
// given topics.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, topics ...string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		topics:      make(map[string]struct{}),
	}

	cm.registerConnection(connection)
	for _, topic := range topics {
		cm.Join(connection, topic)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Strs("topics", topics).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

// unregisterConnection removes a connection from every topic and closes its
// send channel. It is safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return
	}
	delete(cm.connections, conn)
	for topic := range conn.topics {
		cm.removeFromTopic(conn, topic)
	}
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Msg("connection unregistered")
}

// Join subscribes conn to topic.
func (cm *ConnectionManager) Join(conn *Connection, topic string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; !exists {
		return false
	}
	if cm.topics[topic] == nil {
		cm.topics[topic] = make(map[*Connection]struct{})
	}
	cm.topics[topic][conn] = struct{}{}
	conn.topics[topic] = struct{}{}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("topic", topic).
		Int("subscribers", len(cm.topics[topic])).
		Msg("connection joined topic")
	return true
}

// Leave unsubscribes conn from topic.
func (cm *ConnectionManager) Leave(conn *Connection, topic string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeFromTopic(conn, topic)
}

// removeFromTopic requires cm.mu to be held.
func (cm *ConnectionManager) removeFromTopic(conn *Connection, topic string) {
	delete(conn.topics, topic)
	subscribers, exists := cm.topics[topic]
	if !exists {
		return
	}
	delete(subscribers, conn)
	if len(subscribers) == 0 {
		delete(cm.topics, topic)
	}
}

// SendTo queues event for a single connection. It shares the broadcast
// queue, so it stays in order with every other frame.
func (cm *ConnectionManager) SendTo(conn *Connection, event *events.Event) error {
	return cm.enqueue(broadcastMessage{Conn: conn, Event: event})
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	// Sends happen under the read lock so a concurrent unregister cannot
	// close a channel mid-send.
	cm.mu.RLock()
	targets := cm.connections
	switch {
	case message.Conn != nil:
		targets = nil
		if _, exists := cm.connections[message.Conn]; exists {
			targets = map[*Connection]struct{}{message.Conn: {}}
		}
	case message.Topic != "":
		targets = cm.topics[message.Topic]
	}
	for conn := range targets {
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Int64("simulation_id", message.Event.SimulationID).
		Str("topic", message.Topic).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// ConnectionStats summarises active connections.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveTopics     int            `json:"active_topics"`
	TopicConnections map[string]int `json:"topic_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := make(map[string]int, len(cm.topics))
	for topic, subscribers := range cm.topics {
		counts[topic] = len(subscribers)
	}

	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveTopics:     len(cm.topics),
		TopicConnections: counts,
	}
}
