package handler

import (
	"net/http"

	"github.com/zerodte/execd/internal/domain"
)

// StatusHandler serves the current runtime config snapshot and queue depths,
// for ops visibility. Not a statistics dashboard: no history, no charts.
type StatusHandler struct {
	rtConfig domain.RuntimeConfigStore
	queue    domain.Queue
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(rtConfig domain.RuntimeConfigStore, queue domain.Queue) *StatusHandler {
	return &StatusHandler{rtConfig: rtConfig, queue: queue}
}

// GetStatus responds with the raw runtime config key/value map and a
// point-in-time queue depth census.
// GET /status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.rtConfig.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "runtime config unavailable")
		return
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runtime_config": cfg,
		"queue_depth":    depth,
	})
}
