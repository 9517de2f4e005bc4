// Package state maintains the aggregated drone state assembled from the
// telemetry stream. Unlike the raw per-message envelopes, the aggregate is
// pre-converted to human-scaled units (degrees, meters, volts) so
// visualization clients can consume it directly.
package state

import (
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"mavgate/pkg/envelope"
	"mavgate/pkg/mavlink"
)

// Heartbeat mirrors the latest HEARTBEAT message.
type Heartbeat struct {
	Type           uint32 `json:"type"`
	Autopilot      uint32 `json:"autopilot"`
	BaseMode       uint32 `json:"base_mode"`
	CustomMode     uint32 `json:"custom_mode"`
	SystemStatus   uint32 `json:"system_status"`
	MavlinkVersion uint8  `json:"mavlink_version"`
	UpdatedAt      string `json:"updated_at"`
}

// Position holds the fused global position in degrees / meters.
type Position struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Alt         float64 `json:"alt"`
	RelativeAlt float64 `json:"relative_alt"`
	Vx          float64 `json:"vx"`
	Vy          float64 `json:"vy"`
	Vz          float64 `json:"vz"`
	Heading     float64 `json:"heading"`
	UpdatedAt   string  `json:"updated_at"`
}

// Attitude holds angles and rates in radians, as the autopilot reports them.
type Attitude struct {
	Roll       float64 `json:"roll"`
	Pitch      float64 `json:"pitch"`
	Yaw        float64 `json:"yaw"`
	Rollspeed  float64 `json:"rollspeed"`
	Pitchspeed float64 `json:"pitchspeed"`
	Yawspeed   float64 `json:"yawspeed"`
	UpdatedAt  string  `json:"updated_at"`
}

// GPS holds the raw GNSS fix converted to degrees / meters.
type GPS struct {
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Alt               float64 `json:"alt"`
	FixType           uint32  `json:"fix_type"`
	SatellitesVisible uint8   `json:"satellites_visible"`
	UpdatedAt         string  `json:"updated_at"`
}

// Battery holds pack voltage in volts and current in amps. Current is nil
// when the autopilot does not measure it (reported as -1 on the wire).
type Battery struct {
	Voltage   float64  `json:"voltage"`
	Current   *float64 `json:"current"`
	Remaining int8     `json:"remaining"`
	UpdatedAt string   `json:"updated_at"`
}

// Cache is the aggregate of the most recently observed drone state. One
// writer (the pipeline) mutates it; the broadcast hub reads snapshots.
type Cache struct {
	mu        sync.RWMutex
	heartbeat *Heartbeat
	position  *Position
	attitude  *Attitude
	gps       *GPS
	battery   *Battery
}

func NewCache() *Cache {
	return &Cache{}
}

// Update merges a decoded message into its field group. Messages whose type
// maps to no group leave the cache untouched.
func (c *Cache) Update(msg mavlink.Message) {
	ts := msg.Received.UTC().Format(envelope.TimestampLayout)

	switch m := msg.Raw.(type) {
	case *common.MessageHeartbeat:
		c.mu.Lock()
		c.heartbeat = &Heartbeat{
			Type:           uint32(m.Type),
			Autopilot:      uint32(m.Autopilot),
			BaseMode:       uint32(m.BaseMode),
			CustomMode:     m.CustomMode,
			SystemStatus:   uint32(m.SystemStatus),
			MavlinkVersion: m.MavlinkVersion,
			UpdatedAt:      ts,
		}
		c.mu.Unlock()

	case *common.MessageGlobalPositionInt:
		c.mu.Lock()
		c.position = &Position{
			Lat:         float64(m.Lat) / 1e7,
			Lon:         float64(m.Lon) / 1e7,
			Alt:         float64(m.Alt) / 1000.0,
			RelativeAlt: float64(m.RelativeAlt) / 1000.0,
			Vx:          float64(m.Vx) / 100.0,
			Vy:          float64(m.Vy) / 100.0,
			Vz:          float64(m.Vz) / 100.0,
			Heading:     float64(m.Hdg) / 100.0,
			UpdatedAt:   ts,
		}
		c.mu.Unlock()

	case *common.MessageAttitude:
		c.mu.Lock()
		c.attitude = &Attitude{
			Roll:       float64(m.Roll),
			Pitch:      float64(m.Pitch),
			Yaw:        float64(m.Yaw),
			Rollspeed:  float64(m.Rollspeed),
			Pitchspeed: float64(m.Pitchspeed),
			Yawspeed:   float64(m.Yawspeed),
			UpdatedAt:  ts,
		}
		c.mu.Unlock()

	case *common.MessageGpsRawInt:
		c.mu.Lock()
		c.gps = &GPS{
			Lat:               float64(m.Lat) / 1e7,
			Lon:               float64(m.Lon) / 1e7,
			Alt:               float64(m.Alt) / 1000.0,
			FixType:           uint32(m.FixType),
			SatellitesVisible: m.SatellitesVisible,
			UpdatedAt:         ts,
		}
		c.mu.Unlock()

	case *common.MessageBatteryStatus:
		b := &Battery{
			Remaining: m.BatteryRemaining,
			UpdatedAt: ts,
		}
		if len(m.Voltages) > 0 {
			b.Voltage = float64(m.Voltages[0]) / 1000.0
		}
		if m.CurrentBattery != -1 {
			current := float64(m.CurrentBattery) / 100.0
			b.Current = &current
		}
		c.mu.Lock()
		c.battery = b
		c.mu.Unlock()
	}
}

// Snapshot returns a point-in-time copy of the aggregate, keyed by field
// group. Groups never observed are absent, matching the behavior clients
// expect right after startup.
func (c *Cache) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, 5)
	if c.heartbeat != nil {
		hb := *c.heartbeat
		out["heartbeat"] = hb
	}
	if c.position != nil {
		pos := *c.position
		out["position"] = pos
	}
	if c.attitude != nil {
		att := *c.attitude
		out["attitude"] = att
	}
	if c.gps != nil {
		gps := *c.gps
		out["gps"] = gps
	}
	if c.battery != nil {
		bat := *c.battery
		if c.battery.Current != nil {
			current := *c.battery.Current
			bat.Current = &current
		}
		out["battery"] = bat
	}
	return out
}
