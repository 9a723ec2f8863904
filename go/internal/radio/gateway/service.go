package gateway

import (
	"context"
	"net/http"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/loopradio/go/internal/radio/config"
	"github.com/mcdev12/loopradio/go/internal/radio/events"
	"github.com/mcdev12/loopradio/go/internal/radio/timeline"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Service is the timing authority's network face: the relay plus status routes
type Service struct {
	config            config.Config
	authority         *timeline.Authority
	publisher         events.Publisher
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	statusHandler     *StatusHandler
}

// NewService wires the relay for authority using cfg
func NewService(cfg config.Config, authority *timeline.Authority, publisher events.Publisher, clock clockwork.Clock) *Service {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}

	connConfig := DefaultConnectionConfig()
	connConfig.CheckOrigin = originChecker(cfg.AllowedOrigins)

	connectionManager := NewConnectionManager(authority, publisher, clock, connConfig)

	return &Service{
		config:            cfg,
		authority:         authority,
		publisher:         publisher,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, cfg.WSPath),
		statusHandler:     NewStatusHandler(authority, connectionManager, cfg.StationLabel),
	}
}

// Start blocks until ctx is cancelled, then closes every session
func (s *Service) Start(ctx context.Context) error {
	log.Info().
		Str("ws_path", s.config.WSPath).
		Float64("duration_sec", s.authority.Spec().DurationSec).
		Int64("anchor_epoch_ms", s.authority.Spec().AnchorEpochMs).
		Msg("starting radio gateway service")

	<-ctx.Done()

	log.Info().Msg("radio gateway service shutting down")
	return s.Stop()
}

// Stop disconnects every session and flushes session events
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
		return err
	}
	log.Info().Msg("radio gateway service stopped")
	return nil
}

// RegisterRoutes registers the relay and status routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.statusHandler.RegisterRoutes(mux)
	log.Info().Msg("radio gateway routes registered")
}

// Handler returns the full HTTP handler with CORS and cleartext HTTP/2.
// WebSocket upgrades arrive as HTTP/1.1 and pass straight through h2c.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "radio_gateway"
	stats["uptime_sec"] = s.authority.Uptime().Seconds()
	return stats
}

// originChecker allows every origin for "*", otherwise only listed origins.
// Requests without an Origin header come from non-browser listeners.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
