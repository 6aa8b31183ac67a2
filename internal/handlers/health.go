package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/domain"
	"github.com/NadavFredi/yaron-hershberg-barbery-sub003/internal/repositories"
)

var startTime = time.Now()

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	prober repositories.HealthRepository
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers. Without a prober the readiness
// endpoint reports ok based on process liveness alone.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithReadinessProber wires the repository used to probe downstream dependencies.
func WithReadinessProber(prober repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.prober = prober
	}
}

// Healthz responds with a simple status payload for liveness monitoring.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeHealthPayload(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz probes downstream dependencies and reports aggregate readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil {
		writeHealthPayload(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	report, err := h.prober.Collect(r.Context())
	if err != nil {
		writeHealthPayload(w, http.StatusServiceUnavailable, map[string]any{
			"status":    string(domain.HealthStatusError),
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":  string(check.Status),
			"latency": check.Latency.String(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	writeHealthPayload(w, status, map[string]any{
		"status":    string(report.Status),
		"checks":    checks,
		"timestamp": report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

func writeHealthPayload(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
