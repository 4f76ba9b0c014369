package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker manages liveness and readiness state for /healthz and /readyz.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time
	onChange  func(ready bool)
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// OnChange registers a callback run on every SetReady, used to mirror
// readiness into the gRPC health service.
func (h *HealthChecker) OnChange(fn func(ready bool)) {
	h.onChange = fn
}

// SetReady marks the service as ready (or not) to accept traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
	if h.onChange != nil {
		h.onChange(ready)
	}
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// LivenessHandler returns 200 while the process is running.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns 200 once the store is open and the listeners
// are up, 503 otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.ready.Load() {
		writeStatus(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	writeStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
}

func writeStatus(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
