package filter

import (
	"testing"
	"time"
)

func TestEmptyAllowSetAdmitsEverything(t *testing.T) {
	f := New(nil, nil, 0)
	now := time.Now()
	for _, name := range []string{"HEARTBEAT", "ATTITUDE", "SERVO_OUTPUT_RAW"} {
		if !f.Admit(name, now) {
			t.Fatalf("expected %s to be admitted", name)
		}
	}
}

func TestAllowSetRejectsOtherTypes(t *testing.T) {
	f := New([]string{"ATTITUDE"}, nil, 0)
	now := time.Now()
	if !f.Admit("ATTITUDE", now) {
		t.Fatalf("ATTITUDE should be admitted")
	}
	if f.Admit("HEARTBEAT", now) {
		t.Fatalf("HEARTBEAT should be rejected by the allow set")
	}
}

func TestIgnoreSetWinsOverAllowSet(t *testing.T) {
	f := New([]string{"ODOMETRY"}, []string{"ODOMETRY"}, 0)
	if f.Admit("ODOMETRY", time.Now()) {
		t.Fatalf("ignored type must never be admitted")
	}
}

func TestRateLimitBoundsForwardedMessages(t *testing.T) {
	f := New(nil, nil, 10) // max 10/s -> 100ms interval
	base := time.Now()

	admitted := 0
	for i := 0; i < 1000; i++ {
		if f.Admit("ATTITUDE", base.Add(time.Duration(i)*time.Millisecond)) {
			admitted++
		}
	}
	// 1s window at 10/s allows 10, plus one for the window boundary.
	if admitted > 11 {
		t.Fatalf("admitted %d messages in 1s at 10/s limit", admitted)
	}
	if admitted < 10 {
		t.Fatalf("admitted only %d messages, limiter too strict", admitted)
	}
}

func TestRateLimiterTracksTypesIndependently(t *testing.T) {
	f := New(nil, nil, 1)
	now := time.Now()
	if !f.Admit("ATTITUDE", now) {
		t.Fatalf("first ATTITUDE should pass")
	}
	if !f.Admit("GPS_RAW_INT", now) {
		t.Fatalf("first GPS_RAW_INT should pass despite ATTITUDE state")
	}
	if f.Admit("ATTITUDE", now.Add(100*time.Millisecond)) {
		t.Fatalf("second ATTITUDE within interval should be dropped")
	}
}

func TestHeartbeatNeverLimitedBelowOneHertz(t *testing.T) {
	f := New(nil, nil, 0.1) // 10s interval for every other type
	base := time.Now()

	if !f.Admit("HEARTBEAT", base) {
		t.Fatalf("first heartbeat should pass")
	}
	if !f.Admit("HEARTBEAT", base.Add(time.Second)) {
		t.Fatalf("heartbeat at 1Hz must survive aggressive rate limits")
	}
	if f.Admit("ATTITUDE", base) && f.Admit("ATTITUDE", base.Add(time.Second)) {
		t.Fatalf("non-heartbeat types must honor the configured interval")
	}
}

func TestUnlimitedRateAdmitsBackToBack(t *testing.T) {
	f := New(nil, nil, 0)
	now := time.Now()
	for i := 0; i < 100; i++ {
		if !f.Admit("ATTITUDE", now) {
			t.Fatalf("unlimited rate dropped message %d", i)
		}
	}
}
