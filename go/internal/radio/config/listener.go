package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	FilterLatest = "latest"
	FilterMinRTT = "minrtt"
)

// ListenerConfig configures a headless listener
type ListenerConfig struct {
	URL          string
	PingInterval time.Duration
	PingTimeout  time.Duration
	FrameRate    int
	Filter       string
	FilterWindow int
	Unmute       bool
	LogLevel     string
}

// LoadListener reads .env (if present) and LISTENER_* environment variables
func LoadListener() (ListenerConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	pingInterval, err := getEnvAsDuration("LISTENER_PING_INTERVAL", 3*time.Second)
	if err != nil {
		return ListenerConfig{}, err
	}
	pingTimeout, err := getEnvAsDuration("LISTENER_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return ListenerConfig{}, err
	}
	frameRate, err := getEnvAsInt("LISTENER_FRAME_RATE", 60)
	if err != nil {
		return ListenerConfig{}, err
	}
	window, err := getEnvAsInt("LISTENER_FILTER_WINDOW", 8)
	if err != nil {
		return ListenerConfig{}, err
	}

	cfg := ListenerConfig{
		URL:          getEnv("LISTENER_URL", "ws://localhost:8080/alarm/ws"),
		PingInterval: pingInterval,
		PingTimeout:  pingTimeout,
		FrameRate:    frameRate,
		Filter:       strings.ToLower(getEnv("LISTENER_FILTER", FilterLatest)),
		FilterWindow: window,
		Unmute:       getEnv("LISTENER_UNMUTE", "false") == "true",
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return ListenerConfig{}, fmt.Errorf("invalid listener configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the listener configuration is usable
func (c ListenerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("LISTENER_URL is required")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive, got %s", c.PingInterval)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.FrameRate)
	}
	switch c.Filter {
	case FilterLatest, FilterMinRTT:
	default:
		return fmt.Errorf("unknown filter %q", c.Filter)
	}
	return nil
}
