package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const readyzTimeout = 3 * time.Second

// Pinger is satisfied by *pgxpool.Pool and *cache.RedisHeatmapCache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	backends map[string]Pinger
	logger   *slog.Logger
}

func NewHealthHandler(backends map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{backends: backends, logger: logger}
}

type backendStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type readyzResponse struct {
	Status   string                   `json:"status"`
	Backends map[string]backendStatus `json:"backends,omitempty"`
}

// Livez reports that the process is serving HTTP.
func (h *HealthHandler) Livez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz pings every backend concurrently and reports per-backend status.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	if len(h.backends) == 0 {
		writeJSON(w, http.StatusOK, readyzResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
	defer cancel()

	resp := readyzResponse{
		Status:   "ok",
		Backends: make(map[string]backendStatus, len(h.backends)),
	}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, p := range h.backends {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			start := time.Now()
			err := p.Ping(ctx)
			st := backendStatus{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				st.Status = "error"
				st.Error = err.Error()
			}
			mu.Lock()
			resp.Backends[name] = st
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	status := http.StatusOK
	for _, st := range resp.Backends {
		if st.Status != "ok" {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		h.logger.Warn("readiness check failed", "backends", resp.Backends)
	}
	writeJSON(w, status, resp)
}
