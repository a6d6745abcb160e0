package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"telemetry-hub/internal/models"
	"telemetry-hub/internal/storage"

	"go.uber.org/zap"
)

// LogReader is the read side of the log store.
type LogReader interface {
	ListDevices() ([]string, error)
	ListDays(deviceID string) ([]string, error)
	Open(deviceID, day string) (*os.File, error)
	ReadDay(deviceID, day string) ([]models.SampleRow, error)
}

// LogsHandler lists and exports device-day logs.
type LogsHandler struct {
	logs   LogReader
	logger *zap.Logger
}

func NewLogsHandler(logs LogReader, logger *zap.Logger) *LogsHandler {
	return &LogsHandler{logs: logs, logger: logger}
}

func (h *LogsHandler) ListDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := h.logs.ListDevices()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *LogsHandler) ListDays(w http.ResponseWriter, _ *http.Request, deviceID string) {
	days, err := h.logs.ListDays(deviceID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": deviceID, "days": days})
}

// Export writes one device-day log as csv (default), xlsx or json.
func (h *LogsHandler) Export(w http.ResponseWriter, r *http.Request, deviceID, day string) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}

	switch format {
	case "csv":
		f, err := h.logs.Open(deviceID, day)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", attachment(deviceID, day, "csv"))
		if _, err := io.Copy(w, f); err != nil {
			h.logger.Warn("CSV export interrupted",
				zap.String("device_id", deviceID),
				zap.String("day", day),
				zap.Error(err),
			)
		}

	case "json":
		rows, err := h.logs.ReadDay(deviceID, day)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		if rows == nil {
			rows = []models.SampleRow{}
		}
		writeJSON(w, http.StatusOK, rows)

	case "xlsx":
		rows, err := h.logs.ReadDay(deviceID, day)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		data, err := GenerateLogWorkbook(deviceID, day, rows)
		if err != nil {
			h.logger.Error("Failed to build workbook", zap.String("device_id", deviceID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("failed to build workbook"))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", attachment(deviceID, day, "xlsx"))
		_, _ = w.Write(data)

	default:
		writeJSON(w, http.StatusBadRequest, Fail("unsupported format: "+format))
	}
}

func (h *LogsHandler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidDevice), errors.Is(err, storage.ErrInvalidDay):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	default:
		h.logger.Error("Log store error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}

// attachment names the download after the on-disk directory name, which is
// already free of quotes and separators.
func attachment(deviceID, day, ext string) string {
	return fmt.Sprintf(`attachment; filename="%s_%s.%s"`, storage.DirName(deviceID), day, ext)
}
