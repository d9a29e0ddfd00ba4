package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sumitrevolt/flasharb/internal/crypto"
	"github.com/sumitrevolt/flasharb/internal/domain"
)

// WorkerRegistrar is the registry surface the worker API needs.
type WorkerRegistrar interface {
	WorkerReader
	Heartbeat(name string, capabilities []domain.TaskType, load, health float64)
}

// WorkerHandler serves worker heartbeats and the worker roster.
type WorkerHandler struct {
	registry WorkerRegistrar
	auth     *crypto.HMACAuth // nil disables signature checks
	now      func() time.Time
	logger   *slog.Logger
}

// NewWorkerHandler creates a WorkerHandler. Auth may be nil when heartbeat
// signing is not configured.
func NewWorkerHandler(registry WorkerRegistrar, auth *crypto.HMACAuth, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{
		registry: registry,
		auth:     auth,
		now:      time.Now,
		logger:   logger,
	}
}

// Heartbeat records a worker's liveness report. When heartbeat signing is
// configured the request must carry X-Timestamp and X-Signature headers
// covering the body.
// POST /api/workers/heartbeat
func (h *WorkerHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var req struct {
		Worker       string   `json:"worker"`
		Capabilities []string `json:"capabilities"`
		Load         float64  `json:"load"`
		HealthScore  float64  `json:"health_score"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Worker)
	if name == "" {
		writeError(w, http.StatusBadRequest, "worker name is required")
		return
	}

	if h.auth != nil {
		ts, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid timestamp")
			return
		}
		sig := r.Header.Get("X-Signature")
		if !h.auth.Verify(name, string(body), sig, ts, h.now()) {
			h.logger.Warn("rejected heartbeat signature", slog.String("worker", name))
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	capabilities := make([]domain.TaskType, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		switch t := domain.TaskType(c); t {
		case domain.TaskDetect, domain.TaskExecute, domain.TaskMonitor:
			capabilities = append(capabilities, t)
		default:
			writeError(w, http.StatusBadRequest, "unknown capability: "+c)
			return
		}
	}

	h.registry.Heartbeat(name, capabilities, req.Load, req.HealthScore)
	writeJSON(w, http.StatusOK, map[string]string{"worker": name, "status": "registered"})
}

// ListWorkers returns the registry roster with per-worker health.
// GET /api/workers
func (h *WorkerHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := h.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"workers": workers,
		"count":   len(workers),
		"healthy": h.registry.HealthyCount(),
	})
}
