package httpapi

import (
	"net/http"

	"telemetry-hub/internal/models"

	"go.uber.org/zap"
)

// SnapshotSource provides the registry view.
type SnapshotSource interface {
	Snapshot() []models.DeviceRecord
	Get(deviceID string) (models.DeviceRecord, bool)
}

// DevicesHandler serves the registry listing and single-device lookups.
type DevicesHandler struct {
	registry SnapshotSource
	logger   *zap.Logger
}

func NewDevicesHandler(registry SnapshotSource, logger *zap.Logger) *DevicesHandler {
	return &DevicesHandler{registry: registry, logger: logger}
}

// List returns every known device in first-registration order, in the same
// shape as the "devices" broadcast.
func (h *DevicesHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.Views(h.registry.Snapshot()))
}

// Get returns one device in the listing shape, or 404 when the id has never
// been seen.
func (h *DevicesHandler) Get(w http.ResponseWriter, _ *http.Request, deviceID string) {
	rec, ok := h.registry.Get(deviceID)
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("unknown device"))
		return
	}
	writeJSON(w, http.StatusOK, rec.View())
}
