package envelope

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewFormatsTimestampWithMicroseconds(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	env := New("ATTITUDE", ts, nil)
	if env.Timestamp != "2026-03-14T09:26:53.589793" {
		t.Fatalf("unexpected timestamp: %s", env.Timestamp)
	}
}

func TestNewConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, loc)
	env := New("HEARTBEAT", ts, nil)
	if !strings.HasPrefix(env.Timestamp, "2026-01-02T00:00:00") {
		t.Fatalf("timestamp not in UTC: %s", env.Timestamp)
	}
}

func TestMarshalOmitsEmptyData(t *testing.T) {
	raw, err := New(TypePong, time.Now(), nil).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "\"data\"") {
		t.Fatalf("expected data to be omitted: %s", raw)
	}
}

func TestMarshalPreservesNativeFieldValues(t *testing.T) {
	fields := map[string]any{"lat": int32(473977418), "roll": float32(0.01)}
	raw, err := New("GPS_RAW_INT", time.Now(), fields).Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Data map[string]json.Number `json:"data"`
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Data["lat"].String() != "473977418" {
		t.Fatalf("lat was rescaled: %s", decoded.Data["lat"])
	}
}
