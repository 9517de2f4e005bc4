package engine

import (
	"context"

	"mavgate/pkg/envelope"
)

// Hub fans encoded envelopes out to subscriber channels. Delivery to a
// subscriber is non-blocking: a full subscriber channel drops the envelope
// for that subscriber only, so one slow consumer never stalls the rest.
type Hub struct {
	broadcast  chan envelope.Envelope
	register   chan chan envelope.Envelope
	unregister chan chan envelope.Envelope
	clients    map[chan envelope.Envelope]struct{}
	clientBuf  int
	done       chan struct{}
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan envelope.Envelope, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan envelope.Envelope, 256),
		register:   make(chan chan envelope.Envelope),
		unregister: make(chan chan envelope.Envelope),
		clients:    make(map[chan envelope.Envelope]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case env := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- env:
				default:
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan envelope.Envelope {
	return h.SubscribeWithBuffer(h.clientBuf)
}

// SubscribeWithBuffer registers a subscriber channel with the given buffer.
// After the hub has shut down the returned channel is already closed, so
// callers racing a shutdown see end-of-stream instead of blocking.
func (h *Hub) SubscribeWithBuffer(size int) chan envelope.Envelope {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan envelope.Envelope, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan envelope.Envelope) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Publish hands an envelope to the fan-out loop. Envelopes published after
// shutdown are dropped.
func (h *Hub) Publish(env envelope.Envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	}
}
