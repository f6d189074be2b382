package rest

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/frahmantamala/trading-panel/internal/transport"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
	DurationMs int64        `json:"duration_ms"`
}

// Checker pings one dependency, such as the session database or Redis.
type Checker func(ctx context.Context) error

type HealthHandler struct {
	*transport.BaseHandler
	checkers map[string]Checker
	timeout  time.Duration
}

func NewHealthHandler(baseHandler *transport.BaseHandler, checkers map[string]Checker) *HealthHandler {
	if checkers == nil {
		checkers = map[string]Checker{}
	}
	return &HealthHandler{BaseHandler: baseHandler, checkers: checkers, timeout: 2 * time.Second}
}

// Ping says the process is up.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// Health runs every checker and answers 503 when any of them fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: HealthHealthy, Components: make(map[string]CheckEntry, len(names))}
	for _, name := range names {
		start := time.Now()
		err := h.checkers[name](ctx)

		entry := CheckEntry{
			Status:     HealthHealthy,
			CheckedAt:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			h.Logger.WarnContext(r.Context(), "health check failed", "component", name, "error", err)
			entry.Status = HealthUnhealthy
			entry.Message = err.Error()
			resp.Status = HealthUnhealthy
		}
		resp.Components[name] = entry
	}
	resp.CheckedAt = time.Now()

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	h.WriteJSON(w, statusCode, resp)
}
