package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for listener sessions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	path              string
}

// NewWebSocketHandler creates a new WebSocket handler serving path
func NewWebSocketHandler(cm *ConnectionManager, path string) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		path:              path,
	}
}

// HandleListenerConnection opens a relay session
func (h *WebSocketHandler) HandleListenerConnection(w http.ResponseWriter, r *http.Request) {
	// the upgrader has already written an HTTP error on failure
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		log.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(h.path, h.HandleListenerConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
