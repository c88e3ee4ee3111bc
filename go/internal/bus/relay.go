package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/classerp/go/internal/simulation"
	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// errOwnOrigin marks frames this instance published itself.
var errOwnOrigin = errors.New("frame published by this instance")

// Relay consumes frames that other instances published and re-broadcasts
// them to the local clients.
type Relay struct {
	local    simulation.Broadcaster
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConfig
}

func NewRelay(local simulation.Broadcaster, cfg JetStreamConfig) (*Relay, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	r := &Relay{local: local, nc: nc, js: js, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	if err := r.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return r, nil
}

// ensureConsumer creates this instance's consumer. Only new frames are
// delivered: a replayed timer update is already wrong.
func (r *Relay) ensureConsumer(ctx context.Context) error {
	name := r.config.ConsumerPrefix + "-" + r.config.Origin
	consumer, err := r.js.CreateOrUpdateConsumer(ctx, r.config.StreamName, jetstream.ConsumerConfig{
		Name:              name,
		Durable:           name,
		Description:       "Relays simulation events published by other instances",
		FilterSubject:     r.config.SubjectPrefix + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        r.config.MaxDeliver,
		AckWait:           r.config.AckWait,
		MaxAckPending:     r.config.MaxAckPending,
		InactiveThreshold: r.config.InactiveThreshold,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", name).
		Str("stream", r.config.StreamName).
		Msg("JetStream relay consumer ready")
	r.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := r.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("origin", r.config.Origin).Msg("JetStream relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("JetStream relay shutting down")
			return nil
		case msg := <-messageCh:
			r.handle(msg)
		}
	}
}

func (r *Relay) handle(msg jetstream.Msg) {
	err := r.relay(msg.Headers(), msg.Data())
	switch {
	case err == nil, errors.Is(err, errOwnOrigin):
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	default:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to relay message")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
	}
}

func (r *Relay) relay(header nats.Header, data []byte) error {
	audience, event, err := decodeMsg(r.config.Origin, header, data)
	if err != nil {
		return err
	}
	if audience == AudienceAll {
		err = r.local.BroadcastAll(event)
	} else {
		err = r.local.BroadcastTopic(audience, event)
	}
	if err != nil {
		return fmt.Errorf("local broadcast: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Int64("simulation_id", event.SimulationID).
		Str("origin", header.Get(HeaderOrigin)).
		Msg("relayed remote event")
	return nil
}

// decodeMsg validates a stream frame and returns its audience and event.
// Frames from self return errOwnOrigin.
func decodeMsg(self string, header nats.Header, data []byte) (string, *events.Event, error) {
	if header.Get(HeaderOrigin) == self {
		return "", nil, errOwnOrigin
	}
	audience := header.Get(HeaderAudience)
	if audience == "" {
		return "", nil, errors.New("missing audience header")
	}

	var event events.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return "", nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type == "" || event.ID == "" {
		return "", nil, errors.New("frame without id or type")
	}
	if raw := header.Get(HeaderSimulationID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id != event.SimulationID {
			return "", nil, fmt.Errorf("simulation header %q does not match frame %d", raw, event.SimulationID)
		}
	}
	return audience, &event, nil
}

// Stop closes the NATS connection.
func (r *Relay) Stop() error {
	if r.nc != nil {
		r.nc.Close()
	}
	return nil
}
