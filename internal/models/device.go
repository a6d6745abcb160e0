package models

import "time"

// ConnID is the opaque token the transport assigns to a live connection.
// The empty value means "no connection".
type ConnID string

// Role tags a connection as a sample producer or a dashboard.
type Role string

const (
	RoleDevice   Role = "device"
	RoleObserver Role = "observer"
)

// ParseRole maps a query value to a Role; anything unknown is a device.
func ParseRole(s string) Role {
	if Role(s) == RoleObserver {
		return RoleObserver
	}
	return RoleDevice
}

// Position is a latitude/longitude pair in decimal degrees.
type Position struct {
	Lat float64
	Lon float64
}

// DeviceRecord is the registry's per-device state.
type DeviceRecord struct {
	DeviceID      string
	SourceAddress string
	Conn          ConnID // empty while offline
	LastSeenAt    time.Time
	LastPosition  *Position // kept across reconnects
}

// Online reports whether a connection is currently attached.
func (r DeviceRecord) Online() bool {
	return r.Conn != ""
}

// Clone returns a deep copy that shares no memory with r.
func (r DeviceRecord) Clone() DeviceRecord {
	c := r
	if r.LastPosition != nil {
		p := *r.LastPosition
		c.LastPosition = &p
	}
	return c
}

// DeviceView is the wire shape of a DeviceRecord in "devices" broadcasts and
// the listing API.
type DeviceView struct {
	DeviceID string   `json:"deviceId"`
	IP       string   `json:"ip"`
	SocketID *string  `json:"socketId"`
	LastSeen string   `json:"lastSeen"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

// View converts r to its wire shape.
func (r DeviceRecord) View() DeviceView {
	v := DeviceView{
		DeviceID: r.DeviceID,
		IP:       r.SourceAddress,
		LastSeen: FormatTime(r.LastSeenAt),
	}
	if r.Online() {
		id := string(r.Conn)
		v.SocketID = &id
	}
	if r.LastPosition != nil {
		lat, lon := r.LastPosition.Lat, r.LastPosition.Lon
		v.Lat = &lat
		v.Lon = &lon
	}
	return v
}

// Views converts a snapshot to wire shape, preserving order.
func Views(records []DeviceRecord) []DeviceView {
	out := make([]DeviceView, 0, len(records))
	for _, r := range records {
		out = append(out, r.View())
	}
	return out
}
