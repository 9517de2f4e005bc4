// Package gateway assembles the full telemetry pipeline: the upstream
// MAVLink connector, the decoder, the filter, the drone-state cache and the
// downstream WebSocket broadcaster.
package gateway

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"mavgate/pkg/bridge/wsjson"
	"mavgate/pkg/config"
	"mavgate/pkg/engine"
	"mavgate/pkg/envelope"
	"mavgate/pkg/filter"
	"mavgate/pkg/integration"
	"mavgate/pkg/mavlink"
	"mavgate/pkg/metric"
	"mavgate/pkg/state"
	"mavgate/pkg/transport"
)

// Source produces the upstream frame stream. The default is the transport
// connector; a synthetic generator can stand in for it.
type Source interface {
	Run(ctx context.Context)
	Frames() <-chan transport.Frame
}

type Gateway struct {
	cfg     config.Config
	log     zerolog.Logger
	source  Source
	filter  *filter.Filter
	cache   *state.Cache
	hub     *engine.Hub
	server  *wsjson.Server
	metrics *metric.Set
}

type Option func(*Gateway)

func WithLogger(log zerolog.Logger) Option {
	return func(g *Gateway) {
		g.log = log
	}
}

// WithSource replaces the transport connector, for synthetic telemetry.
func WithSource(src Source) Option {
	return func(g *Gateway) {
		g.source = src
	}
}

// New wires a gateway from cfg. An unparsable connection descriptor is
// returned as an error; transport failures after startup are retried, never
// returned.
func New(cfg config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		cfg:   cfg,
		log:   zerolog.Nop(),
		cache: state.NewCache(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if cfg.Metrics.Enabled {
		g.metrics = metric.NewSet()
	}
	g.filter = filter.New(cfg.Filter.Allow, cfg.Filter.Ignore, cfg.Filter.MaxRate)
	g.hub = engine.NewHub()

	if g.source == nil {
		endpoint, err := mavlink.ParseEndpoint(cfg.Connection)
		if err != nil {
			return nil, err
		}
		g.source = transport.New(endpoint,
			transport.WithReconnectInterval(cfg.ReconnectInterval()),
			transport.WithReconnectMax(cfg.ReconnectMax()),
			transport.WithBufferSize(cfg.Transport.Buf),
			transport.WithLogger(g.log.With().Str("component", "transport").Logger()),
			transport.WithParseErrorHook(func(error) { g.metrics.DecodeError() }),
		)
	}

	g.server = wsjson.NewServer(
		wsjson.Config{
			Addr:           cfg.WebSocketAddr(),
			Path:           cfg.WebSocket.Path,
			SendBuf:        cfg.WebSocket.SendBuf,
			AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		},
		g.hub,
		g.cache,
		wsjson.WithLogger(g.log.With().Str("component", "websocket").Logger()),
		wsjson.WithMetrics(g.metrics),
	)
	return g, nil
}

// Server exposes the WebSocket server, mainly so callers can wait for it to
// bind and learn the listen address.
func (g *Gateway) Server() *wsjson.Server {
	return g.server
}

// Run blocks until ctx is canceled or the WebSocket server fails to bind.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.source.Run(ctx)
	}()

	if g.cfg.NATS.URL != "" {
		pub, err := integration.NewPublisher(g.cfg.NATS.URL, g.hub,
			integration.WithLogger(g.log.With().Str("component", "nats").Logger()))
		if err != nil {
			// The WebSocket stream works without the mirror.
			g.log.Warn().Err(err).Msg("nats mirror unavailable")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pub.Run(ctx)
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		g.pipeline(ctx)
	}()

	err := g.server.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// pipeline is the single goroutine that moves frames from the source to the
// hub. Running decode, filter, cache update and publish in one place keeps
// state updates and broadcasts in message order.
func (g *Gateway) pipeline(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-g.source.Frames():
			if !ok {
				return
			}
			g.metrics.FrameReceived()

			msg := mavlink.Decode(frame.Msg, frame.SystemID, frame.Received)
			if !g.filter.Admit(msg.Name, frame.Received) {
				g.metrics.MessageFiltered()
				continue
			}

			g.cache.Update(msg)
			g.hub.Publish(envelope.New(msg.Name, frame.Received, msg.Fields))
			g.metrics.EnvelopeBroadcast()
		}
	}
}
