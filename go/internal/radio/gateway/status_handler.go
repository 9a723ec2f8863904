package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/loopradio/go/internal/radio/timeline"
	"github.com/rs/zerolog/log"
)

// InfoResponse describes the authority's configuration and uptime
type InfoResponse struct {
	Service       string   `json:"service"`
	StationLabel  string   `json:"station_label"`
	DurationSec   float64  `json:"duration_sec"`
	AnchorEpochMs int64    `json:"anchor_epoch_ms"`
	UptimeSec     float64  `json:"uptime_sec"`
	ServerNow     int64    `json:"server_now"`
	PositionSec   *float64 `json:"position_sec,omitempty"`
	Connections   int      `json:"connections"`
}

// StatusHandler serves health and info side queries. Nothing here affects sync.
type StatusHandler struct {
	authority    *timeline.Authority
	connections  *ConnectionManager
	stationLabel string
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(authority *timeline.Authority, cm *ConnectionManager, stationLabel string) *StatusHandler {
	return &StatusHandler{
		authority:    authority,
		connections:  cm,
		stationLabel: stationLabel,
	}
}

// HandleHealth handles GET /health
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// HandleInfo handles GET /info
func (h *StatusHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	spec := h.authority.Spec()
	resp := InfoResponse{
		Service:       "loopradio-authority",
		StationLabel:  h.stationLabel,
		DurationSec:   spec.DurationSec,
		AnchorEpochMs: spec.AnchorEpochMs,
		UptimeSec:     h.authority.Uptime().Seconds(),
		ServerNow:     h.authority.NowMs(),
		Connections:   h.connections.ConnectionCount(),
	}
	if pos, ok := spec.Position(float64(resp.ServerNow)); ok {
		resp.PositionSec = &pos
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode info response")
	}
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/info", h.HandleInfo)
}
