package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/zerodte/execd/internal/domain"
)

// HealthHandler serves the liveness/connectivity check: queue, database (via
// the runtime config store) and brokerage gateway reachability.
type HealthHandler struct {
	queue    domain.Queue
	rtConfig domain.RuntimeConfigStore
	broker   domain.BrokerGateway
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(queue domain.Queue, rtConfig domain.RuntimeConfigStore, broker domain.BrokerGateway, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{queue: queue, rtConfig: rtConfig, broker: broker, logger: logger}
}

// HealthCheck responds 200 when every dependency answers within the check
// budget, 503 otherwise, with a per-dependency breakdown.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if _, err := h.queue.Depth(ctx); err != nil {
		checks["queue"] = err.Error()
		healthy = false
	} else {
		checks["queue"] = "ok"
	}

	if _, err := h.rtConfig.GetAll(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.broker.Healthy(ctx); err != nil {
		checks["broker"] = err.Error()
		healthy = false
	} else {
		checks["broker"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		h.logger.WarnContext(ctx, "healthz reporting unhealthy", slog.Any("checks", checks))
	}

	writeJSON(w, status, map[string]any{
		"status":    map[bool]string{true: "ok", false: "degraded"}[healthy],
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
