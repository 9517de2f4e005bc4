// Package metric exposes the gateway's Prometheus instrumentation. A nil
// *Set disables all instrumentation, so callers never need to guard their
// recording calls.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds every counter the gateway records.
type Set struct {
	registry *prometheus.Registry

	framesReceived     prometheus.Counter
	decodeErrors       prometheus.Counter
	messagesFiltered   prometheus.Counter
	envelopesBroadcast prometheus.Counter
	clientsConnected   prometheus.Gauge
	clientSendFailures prometheus.Counter
}

func NewSet() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavgate",
			Name:      "frames_received_total",
			Help:      "MAVLink frames received from the telemetry source",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavgate",
			Name:      "decode_errors_total",
			Help:      "Malformed or checksum-failing frames dropped",
		}),
		messagesFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavgate",
			Name:      "messages_filtered_total",
			Help:      "Decoded messages dropped by the filter or rate limiter",
		}),
		envelopesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavgate",
			Name:      "envelopes_broadcast_total",
			Help:      "Envelopes handed to the broadcast hub",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mavgate",
			Name:      "clients_connected",
			Help:      "Currently connected WebSocket clients",
		}),
		clientSendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavgate",
			Name:      "client_send_failures_total",
			Help:      "Clients disconnected because their send path failed or stalled",
		}),
	}

	s.registry.MustRegister(
		s.framesReceived,
		s.decodeErrors,
		s.messagesFiltered,
		s.envelopesBroadcast,
		s.clientsConnected,
		s.clientSendFailures,
	)
	return s
}

// Handler returns the /metrics HTTP handler for this set.
func (s *Set) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Set) FrameReceived() {
	if s != nil {
		s.framesReceived.Inc()
	}
}

func (s *Set) DecodeError() {
	if s != nil {
		s.decodeErrors.Inc()
	}
}

func (s *Set) MessageFiltered() {
	if s != nil {
		s.messagesFiltered.Inc()
	}
}

func (s *Set) EnvelopeBroadcast() {
	if s != nil {
		s.envelopesBroadcast.Inc()
	}
}

func (s *Set) ClientConnected() {
	if s != nil {
		s.clientsConnected.Inc()
	}
}

func (s *Set) ClientDisconnected() {
	if s != nil {
		s.clientsConnected.Dec()
	}
}

func (s *Set) ClientSendFailure() {
	if s != nil {
		s.clientSendFailures.Inc()
	}
}
