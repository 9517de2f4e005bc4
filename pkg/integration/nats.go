// Package integration mirrors the envelope stream onto a NATS server so
// other backend services can consume telemetry without holding a WebSocket
// connection to the gateway.
package integration

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"mavgate/pkg/engine"
)

const subjectPrefix = "telemetry"

// Subject maps an envelope type to its NATS subject, e.g.
// GLOBAL_POSITION_INT -> telemetry.global_position_int.
func Subject(envType string) string {
	return subjectPrefix + "." + strings.ToLower(envType)
}

type Publisher struct {
	conn *nats.Conn
	hub  *engine.Hub
	log  zerolog.Logger
}

type Option func(*Publisher)

func WithLogger(log zerolog.Logger) Option {
	return func(p *Publisher) {
		p.log = log
	}
}

// NewPublisher connects to the NATS server at url. The connection keeps
// reconnecting forever; telemetry published while NATS is down is dropped,
// matching the live-stream semantics of the WebSocket side.
func NewPublisher(url string, hub *engine.Hub, opts ...Option) (*Publisher, error) {
	p := &Publisher{
		hub: hub,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	conn, err := nats.Connect(url,
		nats.Name("mavgate"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// Run forwards envelopes from the hub until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) {
	sub := p.hub.Subscribe()
	defer p.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub:
			if !ok {
				return
			}
			raw, err := env.Marshal()
			if err != nil {
				continue
			}
			if err := p.conn.Publish(Subject(env.Type), raw); err != nil {
				p.log.Debug().Err(err).Str("type", env.Type).Msg("nats publish failed")
			}
		}
	}
}
