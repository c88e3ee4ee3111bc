package simulation

import (
	"errors"

	"github.com/mcdev12/classerp/go/internal/simulation/events"
)

// Broadcaster is the realtime push channel. Calls must not block: delivery is
// best-effort, never retried and never acknowledged.
type Broadcaster interface {
	// BroadcastAll sends the event to every connected client.
	BroadcastAll(event *events.Event) error
	// BroadcastTopic sends the event to clients subscribed to topic.
	BroadcastTopic(topic string, event *events.Event) error
}

// MultiBroadcaster fans every event out to several channels.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) BroadcastAll(event *events.Event) error {
	var errs []error
	for _, b := range m {
		if err := b.BroadcastAll(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiBroadcaster) BroadcastTopic(topic string, event *events.Event) error {
	var errs []error
	for _, b := range m {
		if err := b.BroadcastTopic(topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
