package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/classerp/go/internal/simulation"
)

type Config struct {
	Server struct {
		Port                string `yaml:"port"`
		ShutdownTimeoutSec  int    `yaml:"shutdown_timeout_sec"`
		ReadHeaderTimeoutMs int    `yaml:"read_header_timeout_ms"`
	} `yaml:"server"`

	Simulation struct {
		RoundDurationSec int  `yaml:"round_duration_sec"`
		MaxRounds        int  `yaml:"max_rounds"`
		StopAtMaxRounds  bool `yaml:"stop_at_max_rounds"`
		TickIntervalMs   int  `yaml:"tick_interval_ms"`
		StoreTimeoutSec  int  `yaml:"store_timeout_sec"`
	} `yaml:"simulation"`

	Store struct {
		// Driver is "postgres" or "memory".
		Driver           string  `yaml:"driver"`
		ListenForDeletes bool    `yaml:"listen_for_deletes"`
		DemoSimulations  []int64 `yaml:"demo_simulations"`
	} `yaml:"store"`

	Gateway struct {
		SendBufferSize  int `yaml:"send_buffer_size"`
		BroadcastBuffer int `yaml:"broadcast_buffer"`
	} `yaml:"gateway"`

	NATS struct {
		URL        string `yaml:"url"`
		StreamName string `yaml:"stream_name"`
		Relay      bool   `yaml:"relay"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var cfg Config
	defaults := simulation.DefaultConfig()

	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeoutSec = 10
	cfg.Server.ReadHeaderTimeoutMs = 5000
	cfg.Simulation.RoundDurationSec = defaults.RoundDurationSeconds()
	cfg.Simulation.MaxRounds = defaults.MaxRounds
	cfg.Simulation.StopAtMaxRounds = defaults.StopAtMaxRounds
	cfg.Simulation.TickIntervalMs = int(defaults.TickInterval / time.Millisecond)
	cfg.Simulation.StoreTimeoutSec = int(defaults.StoreTimeout / time.Second)
	cfg.Store.Driver = "postgres"
	cfg.Store.ListenForDeletes = true
	cfg.Gateway.SendBufferSize = 256
	cfg.Gateway.BroadcastBuffer = 1000
	cfg.NATS.StreamName = "SIMULATION_EVENTS"
	cfg.NATS.Relay = true
	return &cfg
}

// loadConfig reads the YAML file at path if it exists and applies
// environment overrides on top.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info().Str("path", path).Msg("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Simulation.RoundDurationSec = getEnvAsInt("ROUND_DURATION_SEC", c.Simulation.RoundDurationSec)
	c.Simulation.MaxRounds = getEnvAsInt("MAX_ROUNDS", c.Simulation.MaxRounds)
	c.Simulation.StopAtMaxRounds = getEnvAsBool("STOP_AT_MAX_ROUNDS", c.Simulation.StopAtMaxRounds)
	c.Simulation.StoreTimeoutSec = getEnvAsInt("STORE_TIMEOUT_SEC", c.Simulation.StoreTimeoutSec)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
}

// SimulationConfig converts the file settings into the engine's config.
func (c *Config) SimulationConfig() simulation.Config {
	return simulation.Config{
		RoundDuration:   time.Duration(c.Simulation.RoundDurationSec) * time.Second,
		MaxRounds:       c.Simulation.MaxRounds,
		StopAtMaxRounds: c.Simulation.StopAtMaxRounds,
		TickInterval:    time.Duration(c.Simulation.TickIntervalMs) * time.Millisecond,
		StoreTimeout:    time.Duration(c.Simulation.StoreTimeoutSec) * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
