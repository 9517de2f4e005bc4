package mavlink

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Known telemetry message names with a dedicated field mapping. Everything
// else decodes through the generic reflection path so new dialect messages
// degrade gracefully instead of disappearing.
const (
	NameHeartbeat         = "HEARTBEAT"
	NameAttitude          = "ATTITUDE"
	NameGPSRawInt         = "GPS_RAW_INT"
	NameGlobalPositionInt = "GLOBAL_POSITION_INT"
	NameBatteryStatus     = "BATTERY_STATUS"
	NameSysStatus         = "SYS_STATUS"
	NameVFRHud            = "VFR_HUD"
)

// Message is a decoded telemetry message. Fields hold the protocol-native
// numeric values (scaled integers, radians); no unit conversion happens at
// this layer.
type Message struct {
	Name     string
	SystemID byte
	Received time.Time
	Fields   map[string]any

	// Raw is the underlying dialect struct, kept for typed consumers such
	// as the state cache.
	Raw message.Message
}

// Decode maps a dialect message onto its wire name and field mapping.
func Decode(msg message.Message, systemID byte, received time.Time) Message {
	out := Message{
		SystemID: systemID,
		Received: received,
		Raw:      msg,
	}

	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		out.Name = NameHeartbeat
		out.Fields = map[string]any{
			"type":            uint32(m.Type),
			"autopilot":       uint32(m.Autopilot),
			"base_mode":       uint32(m.BaseMode),
			"custom_mode":     m.CustomMode,
			"system_status":   uint32(m.SystemStatus),
			"mavlink_version": m.MavlinkVersion,
		}
	case *common.MessageAttitude:
		out.Name = NameAttitude
		out.Fields = map[string]any{
			"time_boot_ms": m.TimeBootMs,
			"roll":         m.Roll,
			"pitch":        m.Pitch,
			"yaw":          m.Yaw,
			"rollspeed":    m.Rollspeed,
			"pitchspeed":   m.Pitchspeed,
			"yawspeed":     m.Yawspeed,
		}
	case *common.MessageGpsRawInt:
		out.Name = NameGPSRawInt
		out.Fields = map[string]any{
			"time_usec":          m.TimeUsec,
			"fix_type":           uint32(m.FixType),
			"lat":                m.Lat,
			"lon":                m.Lon,
			"alt":                m.Alt,
			"eph":                m.Eph,
			"epv":                m.Epv,
			"vel":                m.Vel,
			"cog":                m.Cog,
			"satellites_visible": m.SatellitesVisible,
		}
	case *common.MessageGlobalPositionInt:
		out.Name = NameGlobalPositionInt
		out.Fields = map[string]any{
			"time_boot_ms": m.TimeBootMs,
			"lat":          m.Lat,
			"lon":          m.Lon,
			"alt":          m.Alt,
			"relative_alt": m.RelativeAlt,
			"vx":           m.Vx,
			"vy":           m.Vy,
			"vz":           m.Vz,
			"hdg":          m.Hdg,
		}
	case *common.MessageBatteryStatus:
		out.Name = NameBatteryStatus
		out.Fields = map[string]any{
			"id":                m.Id,
			"battery_function":  uint32(m.BatteryFunction),
			"type":              uint32(m.Type),
			"temperature":       m.Temperature,
			"voltages":          m.Voltages[:],
			"current_battery":   m.CurrentBattery,
			"current_consumed":  m.CurrentConsumed,
			"energy_consumed":   m.EnergyConsumed,
			"battery_remaining": m.BatteryRemaining,
		}
	case *common.MessageSysStatus:
		out.Name = NameSysStatus
		out.Fields = map[string]any{
			"load":              m.Load,
			"voltage_battery":   m.VoltageBattery,
			"current_battery":   m.CurrentBattery,
			"battery_remaining": m.BatteryRemaining,
			"drop_rate_comm":    m.DropRateComm,
			"errors_comm":       m.ErrorsComm,
		}
	case *common.MessageVfrHud:
		out.Name = NameVFRHud
		out.Fields = map[string]any{
			"airspeed":    m.Airspeed,
			"groundspeed": m.Groundspeed,
			"heading":     m.Heading,
			"throttle":    m.Throttle,
			"alt":         m.Alt,
			"climb":       m.Climb,
		}
	default:
		out.Name = MessageName(msg)
		out.Fields = genericFields(msg)
	}

	return out
}

// MessageName derives the MAVLink wire name from a dialect struct, e.g.
// *common.MessageServoOutputRaw -> SERVO_OUTPUT_RAW.
func MessageName(msg message.Message) string {
	name := fmt.Sprintf("%T", msg)
	if idx := strings.LastIndex(name, ".Message"); idx >= 0 {
		name = name[idx+len(".Message"):]
	}
	return camelToScreamingSnake(name)
}

func camelToScreamingSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			prev := rune(s[i-1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// genericFields builds a snake_case field mapping for message kinds without a
// dedicated decode path. Enum-typed fields are flattened to their numeric
// values to keep the wire representation stable.
func genericFields(msg message.Message) map[string]any {
	v := reflect.ValueOf(msg)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		out[strings.ToLower(camelToScreamingSnake(field.Name))] = flattenValue(v.Field(i))
	}
	return out
}

func flattenValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	default:
		return v.Interface()
	}
}
