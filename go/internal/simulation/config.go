package simulation

import (
	"errors"
	"fmt"
	"time"
)

// Config is read once when the engine is built and never changes afterwards.
type Config struct {
	RoundDuration time.Duration
	// MaxRounds is advisory and surfaced to clients. The engine only acts on
	// it when StopAtMaxRounds is set.
	MaxRounds       int
	StopAtMaxRounds bool
	TickInterval    time.Duration
	StoreTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		RoundDuration:   30 * time.Second,
		MaxRounds:       10,
		StopAtMaxRounds: false,
		TickInterval:    time.Second,
		StoreTimeout:    5 * time.Second,
	}
}

// RoundDurationSeconds is the whole-second round length reported to clients.
func (c Config) RoundDurationSeconds() int {
	return int(c.RoundDuration / time.Second)
}

func (c Config) Validate() error {
	var errs []error
	if c.RoundDuration < time.Second {
		errs = append(errs, fmt.Errorf("round duration must be at least 1s, got %s", c.RoundDuration))
	}
	if c.RoundDuration%time.Second != 0 {
		errs = append(errs, fmt.Errorf("round duration must be a whole number of seconds, got %s", c.RoundDuration))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("store timeout must be positive, got %s", c.StoreTimeout))
	}
	if c.MaxRounds < 0 {
		errs = append(errs, fmt.Errorf("max rounds must not be negative, got %d", c.MaxRounds))
	}
	if c.StopAtMaxRounds && c.MaxRounds == 0 {
		errs = append(errs, errors.New("stop at max rounds requires max rounds > 0"))
	}
	return errors.Join(errs...)
}
