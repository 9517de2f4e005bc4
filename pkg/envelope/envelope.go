package envelope

import (
	"encoding/json"
	"time"
)

// TimestampLayout matches an ISO-8601 UTC timestamp with microsecond
// precision, the format downstream visualization clients already parse.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Reserved envelope types produced by the gateway itself rather than decoded
// from the telemetry link.
const (
	TypeDroneState = "DRONE_STATE"
	TypePong       = "PONG"
)

// Envelope is the JSON wire frame sent to every WebSocket client.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// New builds an envelope stamped with the given time.
func New(typ string, ts time.Time, data any) Envelope {
	return Envelope{
		Type:      typ,
		Timestamp: ts.UTC().Format(TimestampLayout),
		Data:      data,
	}
}

// Marshal encodes the envelope for the wire.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
