package httpapi

import (
	"context"
	"net/http"

	"telemetry-hub/internal/archive"
	"telemetry-hub/internal/models"
	"telemetry-hub/internal/storage"

	"go.uber.org/zap"
)

// UploadLister reads the archive ledger.
type UploadLister interface {
	ListByDevice(ctx context.Context, deviceID string) ([]archive.LedgerEntry, error)
}

// PassRunner runs one archive pass.
type PassRunner interface {
	RunOnce(ctx context.Context) (archive.Report, error)
}

// ArchiveHandler exposes the uploader. Either dependency may be nil when
// the corresponding feature is disabled.
type ArchiveHandler struct {
	ledger   UploadLister
	uploader PassRunner
	logger   *zap.Logger
}

func NewArchiveHandler(ledger UploadLister, uploader PassRunner, logger *zap.Logger) *ArchiveHandler {
	return &ArchiveHandler{ledger: ledger, uploader: uploader, logger: logger}
}

type uploadView struct {
	ObjectKey   string `json:"objectKey"`
	Day         string `json:"day"`
	Size        int64  `json:"size"`
	Fingerprint string `json:"fingerprint"`
	Action      string `json:"action"`
	UploadedAt  string `json:"uploadedAt"`
}

func (h *ArchiveHandler) ListUploads(w http.ResponseWriter, r *http.Request, deviceID string) {
	if h.ledger == nil {
		writeJSON(w, http.StatusNotFound, Fail("archive ledger disabled"))
		return
	}
	if !storage.ValidDeviceID(deviceID) {
		writeJSON(w, http.StatusBadRequest, Fail(storage.ErrInvalidDevice.Error()))
		return
	}

	entries, err := h.ledger.ListByDevice(r.Context(), deviceID)
	if err != nil {
		h.logger.Error("Failed to list uploads", zap.String("device_id", deviceID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	out := make([]uploadView, 0, len(entries))
	for _, e := range entries {
		out = append(out, uploadView{
			ObjectKey:   e.ObjectKey,
			Day:         e.Day,
			Size:        e.Size,
			Fingerprint: e.Fingerprint,
			Action:      e.Action,
			UploadedAt:  models.FormatTime(e.UploadedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": deviceID, "uploads": out})
}

// Run triggers a pass and returns its report.
func (h *ArchiveHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeJSON(w, http.StatusNotFound, Fail("archive disabled"))
		return
	}
	report, err := h.uploader.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("Manual archive pass failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
