package wsjson

import (
	"sync"

	"github.com/gorilla/websocket"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newClient(conn *websocket.Conn, id string, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuf),
	}
}

// trySend queues a frame without blocking. A false return means the client's
// queue is full and the caller should disconnect it.
func (c *client) trySend(msg []byte) bool {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
