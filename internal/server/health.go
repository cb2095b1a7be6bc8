package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves liveness and readiness endpoints for the daemon.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	source       StatusSource
	startTime    time.Time
}

// NewHealthChecker creates a HealthChecker. source may be nil; when set, the
// daemon is only ready while the engine runs.
func NewHealthChecker(source StatusSource) *HealthChecker {
	h := &HealthChecker{
		source:    source,
		startTime: time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the daemon is ready.
func (h *HealthChecker) IsReady() bool {
	if !h.ready.Load() || h.shuttingDown.Load() {
		return false
	}
	return h.source == nil || h.source.Status().Running
}

// markShuttingDown flips readiness off for the rest of the process.
func (h *HealthChecker) markShuttingDown() {
	h.shuttingDown.Store(true)
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse adds uptime and the engine state.
type DetailedHealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	EngineActive bool   `json:"engine_active"`
	Rules        int    `json:"rules"`
}

// LivenessHandler answers /healthz. It only reports that the process serves
// HTTP.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := map[string]string{
			"ready":    healthStatusOK,
			"shutdown": healthStatusOK,
			"engine":   healthStatusOK,
		}
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			allOk = false
		}
		if h.shuttingDown.Load() {
			checks["shutdown"] = healthStatusShuttingDown
			allOk = false
		}
		if h.source != nil && !h.source.Status().Running {
			checks["engine"] = "stopped"
			allOk = false
		}

		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		code := http.StatusOK
		if !allOk {
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	})
}

// DetailedHealthHandler answers /healthz/detailed.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if h.source != nil {
			st := h.source.Status()
			response.EngineActive = st.Active
			response.Rules = st.Rules
		}

		code := http.StatusOK
		switch {
		case h.shuttingDown.Load():
			response.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		case !h.IsReady():
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	})
}

// RegisterHealthEndpoints registers the health endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
