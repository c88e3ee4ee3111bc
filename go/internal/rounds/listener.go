package rounds

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Stopper stops a running simulation; the simulation engine satisfies it.
type Stopper interface {
	Stop(simulationID int64) bool
}

type ListenerConfig struct {
	DatabaseURL          string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel        string        // Channel the delete trigger notifies on
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:        "simulation_deleted",
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// DeletionListener stops running simulations as soon as their row is deleted.
// The engine detects vanished simulations on its own at the next round; this
// only makes the shutdown prompt.
type DeletionListener struct {
	listener *pq.Listener
	stopper  Stopper
	cfg      ListenerConfig
}

func NewDeletionListener(cfg ListenerConfig, stopper Stopper) (*DeletionListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnectInterval,
		cfg.MaxReconnectInterval,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Int("event", int(ev)).Msg("deletion listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel %s: %w", cfg.NotifyChannel, err)
	}

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for simulation deletions")

	return &DeletionListener{
		listener: l,
		stopper:  stopper,
		cfg:      cfg,
	}, nil
}

func (l *DeletionListener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("deletion listener shutting down")
			return l.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications sent meanwhile are lost
				log.Warn().Msg("deletion listener reconnected")
				continue
			}
			if err := l.handleNotification(note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle deletion notification")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping deletion listener")
			}
		}
	}
}

func (l *DeletionListener) Close() error {
	return l.listener.Close()
}

// handleNotification stops the simulation named by the notification payload.
func (l *DeletionListener) handleNotification(extra string) error {
	id, err := strconv.ParseInt(extra, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid simulation id in notification %q: %w", extra, err)
	}

	if l.stopper.Stop(id) {
		log.Info().Int64("simulation_id", id).Msg("stopped simulation after its row was deleted")
	}
	return nil
}
