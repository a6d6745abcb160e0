package models

import "time"

// TimeLayout is the absolute time format used on the wire and in logs.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in UTC using TimeLayout. The zero time renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// Acceleration is a three-axis reading.
type Acceleration struct {
	X float64
	Y float64
	Z float64
}

// SampleEvent is one normalized sensor reading. It is handed to the sinks and
// the broadcaster and never stored in the registry.
type SampleEvent struct {
	DeviceID      string
	ObservedAt    string // producer supplied, or receipt time in TimeLayout
	ReceivedAt    time.Time
	Acceleration  Acceleration
	Position      *Position
	SourceAddress string
}

// Day returns the UTC calendar day (YYYY-MM-DD) the sample belongs to. The
// producer timestamp wins when it parses; otherwise receipt time is used.
func (e SampleEvent) Day() string {
	for _, layout := range []string{time.RFC3339Nano, TimeLayout} {
		if t, err := time.Parse(layout, e.ObservedAt); err == nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	return e.ReceivedAt.UTC().Format("2006-01-02")
}

// SampleRow is the persisted form of a sample. Lat/Lon are nil when absent.
type SampleRow struct {
	Time string   `json:"time"`
	X    float64  `json:"x"`
	Y    float64  `json:"y"`
	Z    float64  `json:"z"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	IP   string   `json:"ip"`
}

// Row converts e to its persisted form.
func (e SampleEvent) Row() SampleRow {
	row := SampleRow{
		Time: e.ObservedAt,
		X:    e.Acceleration.X,
		Y:    e.Acceleration.Y,
		Z:    e.Acceleration.Z,
		IP:   e.SourceAddress,
	}
	if e.Position != nil {
		lat, lon := e.Position.Lat, e.Position.Lon
		row.Lat = &lat
		row.Lon = &lon
	}
	return row
}

// SampleView is the wire shape of a "sensor-data" broadcast.
type SampleView struct {
	DeviceID string `json:"deviceId"`
	SampleRow
}

// View converts e to its broadcast shape.
func (e SampleEvent) View() SampleView {
	return SampleView{DeviceID: e.DeviceID, SampleRow: e.Row()}
}
