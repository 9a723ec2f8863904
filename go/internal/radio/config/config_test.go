package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"RADIO_HOST", "RADIO_PORT", "RADIO_WS_PATH", "RADIO_DURATION_SEC", "RADIO_ANCHOR_EPOCH_MS", "RADIO_ALLOWED_ORIGINS", "NATS_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.WSPath != "/alarm/ws" {
		t.Fatalf("unexpected ws path %q", cfg.WSPath)
	}
	spec := cfg.Timeline()
	if spec.DurationSec != 4920 || spec.AnchorEpochMs != 0 {
		t.Fatalf("unexpected timeline %+v", spec)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RADIO_PORT", "9090")
	t.Setenv("RADIO_DURATION_SEC", "214.62")
	t.Setenv("RADIO_ANCHOR_EPOCH_MS", "1700000000000")
	t.Setenv("RADIO_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Port != "9090" || cfg.DurationSec != 214.62 || cfg.AnchorEpochMs != 1700000000000 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("RADIO_DURATION_SEC", "forever")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateRejectsNonPositiveDuration(t *testing.T) {
	cfg := Config{Port: "8080", WSPath: "/ws", DurationSec: 0}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	cfg.DurationSec = -3
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestWithFileOverlaysNonZeroFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radio.yaml")
	body := "port: \"7000\"\nduration_sec: 100\nstation_label: Night Loop\nallowed_origins:\n  - https://radio.example\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	base := Config{Host: "127.0.0.1", Port: "8080", WSPath: "/alarm/ws", DurationSec: 4920, AnchorEpochMs: 5}
	cfg, err := base.WithFile(path)
	if err != nil {
		t.Fatalf("with file: %v", err)
	}
	if cfg.Port != "7000" || cfg.DurationSec != 100 || cfg.StationLabel != "Night Loop" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Host != "127.0.0.1" || cfg.AnchorEpochMs != 5 || cfg.WSPath != "/alarm/ws" {
		t.Fatalf("zero file values must not override: %+v", cfg)
	}
	if base.Port != "8080" {
		t.Fatalf("overlay must not mutate the original")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radio.yaml")
	if err := os.WriteFile(path, []byte("duration_sec: 0.5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RADIO_CONFIG", path)
	t.Setenv("RADIO_DURATION_SEC", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DurationSec != 0.5 {
		t.Fatalf("expected duration from file, got %v", cfg.DurationSec)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("RADIO_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLevel(t *testing.T) {
	if Level("DEBUG") != zerolog.DebugLevel {
		t.Fatalf("expected debug level")
	}
	if Level("nonsense") != zerolog.InfoLevel {
		t.Fatalf("expected info fallback")
	}
	if Level("") != zerolog.InfoLevel {
		t.Fatalf("expected info fallback for empty level")
	}
}

func TestLoadListener(t *testing.T) {
	t.Setenv("LISTENER_URL", "ws://radio.example/alarm/ws")
	t.Setenv("LISTENER_PING_INTERVAL", "1500ms")
	t.Setenv("LISTENER_FILTER", "MinRTT")

	cfg, err := LoadListener()
	if err != nil {
		t.Fatalf("load listener: %v", err)
	}
	if cfg.PingInterval != 1500*time.Millisecond || cfg.Filter != FilterMinRTT {
		t.Fatalf("unexpected listener config %+v", cfg)
	}
	if cfg.PingTimeout != 5*time.Second || cfg.FrameRate != 60 || cfg.FilterWindow != 8 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadListenerRejectsUnknownFilter(t *testing.T) {
	t.Setenv("LISTENER_FILTER", "kalman")
	if _, err := LoadListener(); err == nil {
		t.Fatalf("expected unknown filter error")
	}
}
