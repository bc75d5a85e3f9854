package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker tracks engine liveness for the /health endpoint. The
// engine marks every completed cycle; a long gap means the loop is stuck
// or the venue is unreachable.
type HealthChecker struct {
	mu        sync.RWMutex
	startedAt time.Time
	lastCycle time.Time
	connected bool
	lastError string
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	LastCycle time.Time `json:"last_cycle"`
	Connected bool      `json:"connected"`
	Uptime    string    `json:"uptime"`
	LastError string    `json:"last_error,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{startedAt: time.Now()}
}

// MarkCycle records a completed engine cycle.
func (h *HealthChecker) MarkCycle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = time.Now()
	h.connected = true
	h.lastError = ""
}

// MarkError records a failed venue interaction.
func (h *HealthChecker) MarkError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	if err != nil {
		h.lastError = err.Error()
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.connected || time.Since(h.lastCycle) > 5*time.Minute {
		status = "degraded"
	}

	resp := HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		LastCycle: h.lastCycle,
		Connected: h.connected,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		LastError: h.lastError,
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
