package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// EventType is the kind of session lifecycle event
type EventType string

const (
	EventTypeSessionOpened EventType = "session.opened"
	EventTypeSessionClosed EventType = "session.closed"
)

// SessionEvent describes a relay session opening or closing
type SessionEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id"`
	RemoteAddr  string    `json:"remote_addr"`
	Timestamp   time.Time `json:"timestamp"`
	ConnectedMs int64     `json:"connected_ms,omitempty"` // closed only
	PongsSent   uint64    `json:"pongs_sent,omitempty"`   // closed only
}

// NewSessionEvent stamps a new event with a fresh ID
func NewSessionEvent(eventType EventType, sessionID, remoteAddr string, at time.Time) SessionEvent {
	return SessionEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Timestamp:  at,
	}
}

// Publisher emits session events. Publish must not block the caller on the network.
type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
	Close() error
}

// LogPublisher writes events to the log only
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event SessionEvent) error {
	log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID).
		Msg("session event")
	return nil
}

func (LogPublisher) Close() error { return nil }

type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	DuplicateWindow time.Duration
	FlushTimeout    time.Duration // How long Close waits for outstanding acks
}

func DefaultJetStreamConfig(url string) JetStreamConfig {
	return JetStreamConfig{
		URL:             url,
		StreamName:      "RADIO_EVENTS",
		SubjectPrefix:   "radio.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		FlushTimeout:    5 * time.Second,
	}
}

// JetStreamPublisher publishes session events asynchronously to JetStream
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("loopradio-authority"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Radio session lifecycle events",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  p.config.DuplicateWindow,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
		return nil
	}

	if _, err := p.js.UpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	return nil
}

// Subject returns the subject an event type is published on
func (p *JetStreamPublisher) Subject(eventType EventType) string {
	return fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)
}

// Publish queues the event without waiting for the server ack
func (p *JetStreamPublisher) Publish(_ context.Context, event SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := p.js.PublishAsync(p.Subject(event.Type), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close waits briefly for outstanding acks and drains the connection
func (p *JetStreamPublisher) Close() error {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(p.config.FlushTimeout):
		log.Warn().
			Int("pending", p.js.PublishAsyncPending()).
			Msg("timed out waiting for session event acks")
	}
	return p.nc.Drain()
}
