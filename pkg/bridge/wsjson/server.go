// Package wsjson serves the downstream side of the gateway: a WebSocket
// endpoint that streams JSON envelopes to every connected client and answers
// the small GET_STATE / PING request protocol.
package wsjson

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"mavgate/pkg/engine"
	"mavgate/pkg/envelope"
	"mavgate/pkg/metric"
)

// StateSource supplies the aggregated drone state for DRONE_STATE envelopes.
type StateSource interface {
	Snapshot() map[string]any
}

type Server struct {
	cfg      Config
	hub      *engine.Hub
	states   StateSource
	log      zerolog.Logger
	metrics  *metric.Set
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	readyOnce sync.Once
	ready     chan struct{}
	boundAddr string
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithMetrics(set *metric.Set) Option {
	return func(s *Server) {
		s.metrics = set
	}
}

func NewServer(cfg Config, hub *engine.Hub, states StateSource, opts ...Option) *Server {
	defaults := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}
	if cfg.Path == "" {
		cfg.Path = defaults.Path
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = defaults.SendBuf
	}

	s := &Server{
		cfg:     cfg,
		hub:     hub,
		states:  states,
		log:     zerolog.Nop(),
		clients: make(map[*client]struct{}),
		ready:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(cfg.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range cfg.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run binds the listen address and serves until ctx is canceled. A bind
// failure is returned to the caller: without the WebSocket port nothing
// downstream can proceed.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", s.metrics.Handler())

	corsOpts := cors.Options{AllowedOrigins: s.cfg.AllowedOrigins}
	if len(corsOpts.AllowedOrigins) == 0 {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	handler := cors.New(corsOpts).Handler(mux)

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	httpServer := &http.Server{Handler: handler}

	sub := s.hub.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	s.log.Info().Str("addr", s.cfg.Addr).Str("path", s.cfg.Path).Msg("websocket server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeAll()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Ready is closed once the listener is bound. Useful when the configured
// address uses port 0.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address once Run has started, the configured
// address before that.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.cfg.Addr
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newClient(conn, uuid.NewString(), s.cfg.SendBuf)
	log := s.log.With().Str("client", c.id).Str("remote", conn.RemoteAddr().String()).Logger()
	log.Info().Msg("client connected")

	// The state snapshot goes out before the client joins the broadcast
	// set, so a fresh client never waits for the next telemetry tick and
	// never sees another envelope first.
	if err := conn.WriteJSON(envelope.New(envelope.TypeDroneState, time.Now(), s.states.Snapshot())); err != nil {
		c.close()
		log.Info().Msg("client dropped during state handoff")
		return
	}

	s.addClient(c)
	s.metrics.ClientConnected()
	go c.writeLoop()

	s.readLoop(c, log)

	if s.removeClient(c) {
		s.metrics.ClientDisconnected()
	}
	c.close()
	log.Info().Msg("client disconnected")
}

func (s *Server) readLoop(c *client, log zerolog.Logger) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Debug().Msg("ignoring malformed client payload")
			continue
		}

		switch req.Type {
		case OpGetState:
			// State requests are always answered; they never pass
			// through the pipeline's rate limiter.
			s.replyTo(c, envelope.New(envelope.TypeDroneState, time.Now(), s.states.Snapshot()))
		case OpPing:
			s.replyTo(c, envelope.New(envelope.TypePong, time.Now(), nil))
		default:
			log.Debug().Str("type", req.Type).Msg("ignoring unknown client request")
		}
	}
}

func (s *Server) replyTo(c *client, env envelope.Envelope) {
	raw, err := env.Marshal()
	if err != nil {
		return
	}
	if !c.trySend(raw) {
		s.disconnectStalled(c)
	}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan envelope.Envelope) {
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
			for _, c := range s.snapshotClients() {
				if !c.trySend(raw) {
					s.disconnectStalled(c)
				}
			}
		}
	}
}

// disconnectStalled removes a client whose outbound queue filled up. Dropping
// the connection instead of dropping envelopes keeps delivery to everyone
// else intact and lets the client reconnect to a consistent stream.
func (s *Server) disconnectStalled(c *client) {
	if !s.removeClient(c) {
		return
	}
	c.close()
	s.metrics.ClientSendFailure()
	s.metrics.ClientDisconnected()
	s.log.Warn().Str("client", c.id).Msg("client send queue full, disconnecting")
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) bool {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	return ok
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func (s *Server) closeAll() {
	for _, c := range s.snapshotClients() {
		if s.removeClient(c) {
			s.metrics.ClientDisconnected()
		}
		c.close()
	}
}
