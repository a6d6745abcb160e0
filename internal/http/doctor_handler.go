package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Counter reports a size for the health body.
type Counter interface {
	Len() int
}

// DoctorHandler serves health and metrics.
type DoctorHandler struct {
	registry    Counter
	connections Counter
	metrics     http.Handler
	startedAt   time.Time
	logger      *zap.Logger
}

// NewDoctorHandler creates a DoctorHandler. metrics may be nil to disable
// /metrics.
func NewDoctorHandler(registry, connections Counter, metrics http.Handler, logger *zap.Logger) *DoctorHandler {
	return &DoctorHandler{
		registry:    registry,
		connections: connections,
		metrics:     metrics,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

func (h *DoctorHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.registry != nil {
		body["devices"] = h.registry.Len()
	}
	if h.connections != nil {
		body["connections"] = h.connections.Len()
	}
	writeJSON(w, http.StatusOK, body)
}
