package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports the run mode, uptime and connected relays.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	relays    func() []string
}

// NewStatusHandler creates a StatusHandler. relays may be nil when the
// process does not ingest.
func NewStatusHandler(mode string, startedAt time.Time, relays func() []string) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, relays: relays}
}

// GetStatus responds with the current mode, uptime and relay connections.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	relays := []string{}
	if h.relays != nil {
		if got := h.relays(); got != nil {
			relays = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":             h.mode,
		"uptime_seconds":   int64(time.Since(h.startedAt).Seconds()),
		"relays_connected": relays,
	})
}
