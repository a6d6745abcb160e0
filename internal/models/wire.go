package models

import (
	"bytes"
	"encoding/json"
)

// Event names on the wire.
const (
	EventRegister   = "register"
	EventRegistered = "registered"
	EventSensorData = "sensor-data"
	EventDevices    = "devices"
)

// Envelope frames every websocket message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HasPayload reports whether the envelope carried a non-null payload.
func (e Envelope) HasPayload() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// RegisterPayload is the body of "register".
type RegisterPayload struct {
	DeviceID string `json:"deviceId,omitempty"`
}

// RegisteredPayload is the reply to "register".
type RegisteredPayload struct {
	DeviceID string `json:"deviceId"`
}

// SensorPayload is the untrusted body of an inbound "sensor-data". Every field
// is kept raw so numbers, numeric strings and junk can be told apart.
type SensorPayload struct {
	DeviceID json.RawMessage `json:"deviceId"`
	Time     json.RawMessage `json:"time"`
	X        json.RawMessage `json:"x"`
	Y        json.RawMessage `json:"y"`
	Z        json.RawMessage `json:"z"`
	Lat      json.RawMessage `json:"lat"`
	Lon      json.RawMessage `json:"lon"`
}

// Encode builds a framed message. Marshal errors cannot happen for the payload
// types in this package, so they are reported as a nil slice.
func Encode(eventType string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	msg, err := json.Marshal(Envelope{Type: eventType, Data: raw})
	if err != nil {
		return nil
	}
	return msg
}
