package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/loopradio/go/internal/radio/timeline"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDuration is returned when the loop duration is not positive
var ErrInvalidDuration = errors.New("loop duration must be positive")

// Config is the authority configuration. It is built once at startup and
// passed by value; nothing mutates it afterwards.
type Config struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	WSPath         string   `yaml:"ws_path"`
	DurationSec    float64  `yaml:"duration_sec"`
	AnchorEpochMs  int64    `yaml:"anchor_epoch_ms"`
	StationLabel   string   `yaml:"station_label"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	NATSURL        string   `yaml:"nats_url"`
	LogLevel       string   `yaml:"log_level"`
}

// Timeline returns the timeline spec this configuration defines
func (c Config) Timeline() timeline.Spec {
	return timeline.Spec{
		DurationSec:   c.DurationSec,
		AnchorEpochMs: c.AnchorEpochMs,
	}
}

// Address returns the listen address (host:port)
func (c Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if err := c.Timeline().Validate(); err != nil {
		return fmt.Errorf("%w: got %v", ErrInvalidDuration, c.DurationSec)
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("ws path must start with /: %q", c.WSPath)
	}
	return nil
}

// Load reads .env (if present), then environment variables, then the YAML
// file named by RADIO_CONFIG (if set), and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}

	if path := os.Getenv("RADIO_CONFIG"); path != "" {
		cfg, err = cfg.WithFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables and defaults
func FromEnv() (Config, error) {
	duration, err := getEnvAsFloat("RADIO_DURATION_SEC", 4920)
	if err != nil {
		return Config{}, err
	}
	anchor, err := getEnvAsInt64("RADIO_ANCHOR_EPOCH_MS", 0)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Host:           getEnv("RADIO_HOST", "0.0.0.0"),
		Port:           getEnv("RADIO_PORT", "8080"),
		WSPath:         getEnv("RADIO_WS_PATH", "/alarm/ws"),
		DurationSec:    duration,
		AnchorEpochMs:  anchor,
		StationLabel:   getEnv("RADIO_STATION_LABEL", "My Station - Track A"),
		AllowedOrigins: parseList(getEnv("RADIO_ALLOWED_ORIGINS", "*")),
		NATSURL:        getEnv("NATS_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}, nil
}

// WithFile returns a copy of c overlaid with the non-zero fields of a YAML file
func (c Config) WithFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != "" {
		c.Port = file.Port
	}
	if file.WSPath != "" {
		c.WSPath = file.WSPath
	}
	if file.DurationSec != 0 {
		c.DurationSec = file.DurationSec
	}
	if file.AnchorEpochMs != 0 {
		c.AnchorEpochMs = file.AnchorEpochMs
	}
	if file.StationLabel != "" {
		c.StationLabel = file.StationLabel
	}
	if len(file.AllowedOrigins) > 0 {
		c.AllowedOrigins = file.AllowedOrigins
	}
	if file.NATSURL != "" {
		c.NATSURL = file.NATSURL
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	return c, nil
}

// Level parses a zerolog level, falling back to info
func Level(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return f, nil
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return i, nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return i, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return d, nil
}

// parseList parses a comma-separated list
func parseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
