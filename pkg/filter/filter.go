package filter

import (
	"time"

	"mavgate/pkg/mavlink"
)

// heartbeatMinInterval floors HEARTBEAT throttling at 1 Hz so clients keep
// their liveness signal no matter how aggressive the configured rate is.
const heartbeatMinInterval = time.Second

// Filter decides, per message type, whether a decoded message is forwarded
// downstream. Rejected messages are dropped outright; stale telemetry is
// worse than missing telemetry, so nothing is buffered for later.
type Filter struct {
	allowed     map[string]struct{}
	ignored     map[string]struct{}
	minInterval time.Duration
	lastForward map[string]time.Time
}

// New builds a filter from the allowed type set (empty = allow all), the
// ignore set, and the maximum per-type rate in messages per second
// (0 = unlimited).
func New(allowed []string, ignored []string, maxRate float64) *Filter {
	f := &Filter{
		lastForward: make(map[string]time.Time),
	}
	if len(allowed) > 0 {
		f.allowed = make(map[string]struct{}, len(allowed))
		for _, name := range allowed {
			f.allowed[name] = struct{}{}
		}
	}
	if len(ignored) > 0 {
		f.ignored = make(map[string]struct{}, len(ignored))
		for _, name := range ignored {
			f.ignored[name] = struct{}{}
		}
	}
	if maxRate > 0 {
		f.minInterval = time.Duration(float64(time.Second) / maxRate)
	}
	return f
}

// Admit reports whether a message of the given type may be forwarded at time
// now, updating the per-type rate limiter state when it is.
//
// Not safe for concurrent use; the pipeline owns it from a single goroutine.
func (f *Filter) Admit(name string, now time.Time) bool {
	if _, skip := f.ignored[name]; skip {
		return false
	}
	if f.allowed != nil {
		if _, ok := f.allowed[name]; !ok {
			return false
		}
	}

	interval := f.minInterval
	if interval == 0 {
		return true
	}
	if name == mavlink.NameHeartbeat && interval > heartbeatMinInterval {
		interval = heartbeatMinInterval
	}

	last, seen := f.lastForward[name]
	if seen && now.Sub(last) < interval {
		return false
	}
	f.lastForward[name] = now
	return true
}
