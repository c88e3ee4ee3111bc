package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// Message headers carried on every published frame.
const (
	HeaderEventType    = "Event-Type"
	HeaderSimulationID = "Simulation-ID"
	HeaderAudience     = "Audience"
	HeaderOrigin       = "Origin"

	// AudienceAll marks frames meant for every client. Any other audience
	// value is a topic name.
	AudienceAll = "all"
)

// JetStreamPublisher mirrors engine broadcasts onto a JetStream stream so
// other instances and downstream consumers see them. Publishing is async and
// never waits for the server ack.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

// IsConnected reports whether the NATS connection is up.
func (p *JetStreamPublisher) IsConnected() bool {
	return p.nc.IsConnected()
}

// Pending is the number of publishes still waiting for a stream ack.
func (p *JetStreamPublisher) Pending() int {
	return p.js.PublishAsyncPending()
}

func (p *JetStreamPublisher) BroadcastAll(event *events.Event) error {
	return p.publish(event, AudienceAll)
}

func (p *JetStreamPublisher) BroadcastTopic(topic string, event *events.Event) error {
	return p.publish(event, topic)
}

func (p *JetStreamPublisher) publish(event *events.Event, audience string) error {
	msg, err := buildMsg(p.config.SubjectPrefix, p.config.Origin, audience, event)
	if err != nil {
		return err
	}

	if _, err := p.js.PublishMsgAsync(msg,
		jetstream.WithMsgID(event.ID),
		jetstream.WithExpectStream(p.config.StreamName),
		jetstream.WithStallWait(p.config.StallWait),
	); err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", event.ID).
		Str("audience", audience).
		Msg("queued event for JetStream")
	return nil
}

// Close waits briefly for in-flight publishes and closes the connection.
func (p *JetStreamPublisher) Close() error {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		log.Warn().Int("pending", p.js.PublishAsyncPending()).Msg("closing with unacknowledged publishes")
	}
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// Subject returns the stream subject for an event,
// e.g. simulation.events.7.NewRound.
func Subject(prefix string, simulationID int64, eventType events.EventType) string {
	return fmt.Sprintf("%s.%d.%s", prefix, simulationID, eventType)
}

func buildMsg(prefix, origin, audience string, event *events.Event) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: Subject(prefix, event.SimulationID, event.Type),
		Data:    data,
		Header: nats.Header{
			HeaderEventType:    []string{string(event.Type)},
			HeaderSimulationID: []string{strconv.FormatInt(event.SimulationID, 10)},
			HeaderAudience:     []string{audience},
			HeaderOrigin:       []string{origin},
		},
	}, nil
}
