package main

import (
	"context"
	"math"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"mavgate/pkg/transport"
)

const (
	mockRollAmplitudeRad  = 35.0 * math.Pi / 180.0
	mockPitchAmplitudeRad = 25.0 * math.Pi / 180.0
	mockYawAmplitudeRad   = 40.0 * math.Pi / 180.0

	mockRollFreqHz  = 0.23
	mockPitchFreqHz = 0.31
	mockYawFreqHz   = 0.17

	// Home position for the synthetic orbit, somewhere over Zurich.
	mockHomeLatE7 = 473977420
	mockHomeLonE7 = 85455940
	mockOrbitAltM = 50.0
	mockOrbitM    = 120.0

	mockSystemID = 1
)

// mockSource generates a plausible telemetry stream without a flight
// controller: attitude sinusoids at the configured rate, a slow orbit for
// position at 5 Hz, heartbeat and a draining battery at 1 Hz.
type mockSource struct {
	attitudeHz int
	out        chan transport.Frame
}

func newMockSource(attitudeHz int) *mockSource {
	if attitudeHz <= 0 {
		attitudeHz = 50
	}
	return &mockSource{
		attitudeHz: attitudeHz,
		out:        make(chan transport.Frame, 256),
	}
}

func (m *mockSource) Frames() <-chan transport.Frame {
	return m.out
}

func (m *mockSource) Run(ctx context.Context) {
	defer close(m.out)

	attitude := time.NewTicker(time.Second / time.Duration(m.attitudeHz))
	position := time.NewTicker(200 * time.Millisecond)
	slow := time.NewTicker(time.Second)
	defer attitude.Stop()
	defer position.Stop()
	defer slow.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-attitude.C:
			t := time.Since(start).Seconds()
			roll, pitch, yaw := mockEulerAngles(t)
			m.emit(ctx, &common.MessageAttitude{
				TimeBootMs: uint32(t * 1000),
				Roll:       float32(roll),
				Pitch:      float32(pitch),
				Yaw:        float32(yaw),
			})
		case <-position.C:
			t := time.Since(start).Seconds()
			lat, lon := mockOrbitPosition(t)
			m.emit(ctx, &common.MessageGlobalPositionInt{
				TimeBootMs:  uint32(t * 1000),
				Lat:         lat,
				Lon:         lon,
				Alt:         int32(mockOrbitAltM * 1000),
				RelativeAlt: int32(mockOrbitAltM * 1000),
				Hdg:         uint16(math.Mod(t*36, 360) * 100),
			})
			m.emit(ctx, &common.MessageGpsRawInt{
				FixType:           common.GPS_FIX_TYPE_3D_FIX,
				Lat:               lat,
				Lon:               lon,
				Alt:               int32(mockOrbitAltM * 1000),
				SatellitesVisible: 14,
			})
		case <-slow.C:
			t := time.Since(start).Seconds()
			m.emit(ctx, &common.MessageHeartbeat{
				Type:           common.MAV_TYPE_QUADROTOR,
				Autopilot:      common.MAV_AUTOPILOT_ARDUPILOTMEGA,
				BaseMode:       common.MAV_MODE_FLAG_SAFETY_ARMED | common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED,
				SystemStatus:   common.MAV_STATE_ACTIVE,
				MavlinkVersion: 3,
			})
			m.emit(ctx, &common.MessageBatteryStatus{
				Id:               0,
				Voltages:         mockCellVoltages(t),
				CurrentBattery:   1250,
				BatteryRemaining: int8(math.Max(5, 100-t/30)),
			})
		}
	}
}

func (m *mockSource) emit(ctx context.Context, msg message.Message) {
	frame := transport.Frame{
		Msg:      msg,
		SystemID: mockSystemID,
		Received: time.Now(),
	}
	select {
	case m.out <- frame:
	case <-ctx.Done():
	}
}

func mockEulerAngles(t float64) (roll, pitch, yaw float64) {
	roll = mockRollAmplitudeRad * math.Sin(2.0*math.Pi*mockRollFreqHz*t)
	pitch = mockPitchAmplitudeRad * math.Sin(2.0*math.Pi*mockPitchFreqHz*t+math.Pi/3.0)
	yaw = mockYawAmplitudeRad * math.Sin(2.0*math.Pi*mockYawFreqHz*t+2.0*math.Pi/3.0)
	return
}

// mockOrbitPosition walks a circle of mockOrbitM meters around home. One
// degree of latitude is close enough to 111 km for synthetic data.
func mockOrbitPosition(t float64) (latE7, lonE7 int32) {
	angle := 2.0 * math.Pi * t / 60.0
	dLat := mockOrbitM * math.Cos(angle) / 111_000.0
	dLon := mockOrbitM * math.Sin(angle) / (111_000.0 * math.Cos(float64(mockHomeLatE7)/1e7*math.Pi/180.0))
	latE7 = mockHomeLatE7 + int32(dLat*1e7)
	lonE7 = mockHomeLonE7 + int32(dLon*1e7)
	return
}

func mockCellVoltages(t float64) [10]uint16 {
	// 4S pack sagging from 16.8 V toward 14.0 V.
	cell := uint16(math.Max(3500, 4200-t*2))
	var cells [10]uint16
	for i := range cells {
		cells[i] = 65535 // unused slots per convention
	}
	for i := 0; i < 4; i++ {
		cells[i] = cell
	}
	return cells
}
