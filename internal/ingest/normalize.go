package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"telemetry-hub/internal/models"
)

// Normalized is a parsed sensor payload before identity resolution.
type Normalized struct {
	ClaimedID    string
	ObservedAt   string
	Acceleration models.Acceleration
	Position     *models.Position
}

// Normalize turns an untrusted payload into a best-effort reading. It never
// fails: bad axes become 0, a missing time becomes receivedAt, and position
// is set only when both lat and lon are numeric. A payload that is not a JSON
// object is treated as an empty object.
func Normalize(payload json.RawMessage, receivedAt time.Time) Normalized {
	var p models.SensorPayload
	_ = json.Unmarshal(payload, &p)

	n := Normalized{
		ClaimedID:  stringValue(p.DeviceID),
		ObservedAt: timeValue(p.Time, receivedAt),
		Acceleration: models.Acceleration{
			X: axisValue(p.X),
			Y: axisValue(p.Y),
			Z: axisValue(p.Z),
		},
	}

	lat, latOK := numberValue(p.Lat)
	lon, lonOK := numberValue(p.Lon)
	if latOK && lonOK {
		n.Position = &models.Position{Lat: lat, Lon: lon}
	}
	return n
}

func isAbsent(raw json.RawMessage) bool {
	d := bytes.TrimSpace(raw)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}

// numberValue accepts JSON numbers and numeric strings. NaN and infinities
// are rejected.
func numberValue(raw json.RawMessage) (float64, bool) {
	if isAbsent(raw) {
		return 0, false
	}

	var v float64
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func axisValue(raw json.RawMessage) float64 {
	v, _ := numberValue(raw)
	return v
}

func stringValue(raw json.RawMessage) string {
	if isAbsent(raw) || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// maxUnixMilli is 9999-12-31T23:59:59.999Z, the last instant the wire
// format can express.
const maxUnixMilli = 253402300799999

// timeValue keeps a producer string verbatim, reads a bare number as unix
// milliseconds, and otherwise stamps receipt time. Numbers outside
// 1970..9999 also fall back to receipt time.
func timeValue(raw json.RawMessage, receivedAt time.Time) string {
	if s := stringValue(raw); s != "" {
		return s
	}
	if !isAbsent(raw) && raw[0] != '"' {
		if ms, ok := numberValue(raw); ok && ms >= 0 && ms <= maxUnixMilli {
			return models.FormatTime(time.UnixMilli(int64(ms)))
		}
	}
	return models.FormatTime(receivedAt)
}
