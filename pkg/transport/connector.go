// Package transport owns the link to the telemetry source. It wraps a
// gomavlib node, which handles MAVLink framing and checksums for UDP, TCP and
// serial endpoints, and re-expresses its event stream as a flat sequence of
// received frames. All transport errors are absorbed into retry behavior;
// nothing here ever aborts the process.
package transport

import (
	"context"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/rs/zerolog"
)

// gcsSystemID identifies the gateway on the MAVLink link, by convention the
// ground-station range.
const gcsSystemID = 255

// Frame is one decoded MAVLink message together with its arrival metadata.
type Frame struct {
	Msg      message.Message
	SystemID byte
	Received time.Time
}

// Connector maintains the upstream link: Disconnected -> Connecting ->
// Connected, back to Connecting on any failure, forever until the context is
// canceled.
type Connector struct {
	endpoint     gomavlib.EndpointConf
	out          chan Frame
	log          zerolog.Logger
	reconnect    time.Duration
	reconnectMax time.Duration
	onParseError func(error)
}

type Option func(*Connector)

func WithReconnectInterval(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.reconnect = d
		}
	}
}

func WithReconnectMax(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.reconnectMax = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(c *Connector) {
		if n > 0 {
			c.out = make(chan Frame, n)
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Connector) {
		c.log = log
	}
}

// WithParseErrorHook installs a callback invoked for every malformed or
// checksum-failing frame, typically a metrics counter.
func WithParseErrorHook(fn func(error)) Option {
	return func(c *Connector) {
		if fn != nil {
			c.onParseError = fn
		}
	}
}

func New(endpoint gomavlib.EndpointConf, opts ...Option) *Connector {
	c := &Connector{
		endpoint:     endpoint,
		out:          make(chan Frame, 256),
		log:          zerolog.Nop(),
		reconnect:    1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Frames returns the stream of received frames. The channel is closed when
// Run returns.
func (c *Connector) Frames() <-chan Frame {
	return c.out
}

// Run drives the connection until ctx is canceled. It blocks the calling
// goroutine.
func (c *Connector) Run(ctx context.Context) {
	defer close(c.out)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		c.log.Info().Msg("transport connecting")
		node, err := gomavlib.NewNode(gomavlib.NodeConf{
			Endpoints:   []gomavlib.EndpointConf{c.endpoint},
			Dialect:     common.Dialect,
			OutVersion:  gomavlib.V2,
			OutSystemID: gcsSystemID,
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("transport connect failed")
			attempt++
			c.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		c.consume(ctx, node)
		node.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn().Msg("transport disconnected")
		c.sleepBackoff(ctx, 1)
	}
}

func (c *Connector) consume(ctx context.Context, node *gomavlib.Node) {
	events := node.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch e := event.(type) {
			case *gomavlib.EventFrame:
				frame := Frame{
					Msg:      e.Message(),
					SystemID: e.SystemID(),
					Received: time.Now(),
				}
				select {
				case c.out <- frame:
				case <-ctx.Done():
					return
				}
			case *gomavlib.EventChannelOpen:
				c.log.Info().Str("channel", e.Channel.String()).Msg("transport connected")
			case *gomavlib.EventChannelClose:
				c.log.Warn().Str("channel", e.Channel.String()).Msg("transport channel closed, reconnecting")
			case *gomavlib.EventParseError:
				c.log.Debug().Err(e.Error).Msg("dropping malformed frame")
				if c.onParseError != nil {
					c.onParseError(e.Error)
				}
			}
		}
	}
}

func (c *Connector) sleepBackoff(ctx context.Context, attempt int) {
	wait := min(c.reconnect*time.Duration(attempt), c.reconnectMax)
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}
