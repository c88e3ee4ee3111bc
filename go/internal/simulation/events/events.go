package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names one of the realtime events pushed to clients.
type EventType string

const (
	EventTypeSimulationStarted EventType = "SimulationStarted"
	EventTypeSimulationStopped EventType = "SimulationStopped"
	EventTypeNewRound          EventType = "NewRound"
	EventTypeTimerUpdate       EventType = "TimerUpdate"
)

const topicPrefix = "simulation_"

// Event is the frame sent over the realtime channel.
type Event struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	SimulationID int64           `json:"simulationId"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
}

// New wraps payload in a frame with a fresh id.
func New(eventType EventType, simulationID int64, payload any, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:           uuid.New().String(),
		Type:         eventType,
		SimulationID: simulationID,
		Timestamp:    now.UTC(),
		Data:         data,
	}, nil
}

// Topic returns the subscriber group name for a simulation.
func Topic(simulationID int64) string {
	return topicPrefix + strconv.FormatInt(simulationID, 10)
}

// ParseTopic is the inverse of Topic.
func ParseTopic(topic string) (int64, bool) {
	rest, ok := strings.CutPrefix(topic, topicPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParsePayload decodes the frame data into the payload struct for its type.
func ParsePayload(event *Event) (any, error) {
	switch event.Type {
	case EventTypeSimulationStarted:
		var payload SimulationStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSimulationStopped:
		var payload SimulationStoppedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeNewRound:
		var payload NewRoundPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerUpdate:
		var payload TimerUpdatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
}
