// Package websocket wraps a gorilla/websocket session in the connection
// handle the routing core operates on: a read pump feeding the dispatcher,
// a write pump draining a buffered send channel, and ping/pong keepalive.
package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carelink-ws-server/internal/types"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Options controls per-connection buffers and limits.
type Options struct {
	SendBufferSize int
	MaxMessageSize int64
}

// Conn is a live authenticated transport session. It implements
// types.Connection; ownership passes to the presence registry once the
// connection is admitted.
type Conn struct {
	ws         *websocket.Conn
	send       chan []byte
	principal  types.Principal
	maxMsgSize int64
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewConn(ws *websocket.Conn, principal types.Principal, opts Options, logger *zap.Logger) *Conn {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	return &Conn{
		ws:         ws,
		send:       make(chan []byte, opts.SendBufferSize),
		principal:  principal,
		maxMsgSize: opts.MaxMessageSize,
		logger:     logger,
	}
}

func (c *Conn) PrincipalID() string {
	return c.principal.ID
}

func (c *Conn) PrincipalRole() types.Role {
	return c.principal.Role
}

// Send queues a message for delivery without blocking. A full send buffer
// means the peer stopped draining; the connection is closed so its read
// pump unwinds and presence releases it.
func (c *Conn) Send(message []byte) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConnClosed
	}

	select {
	case c.send <- message:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
		c.logger.Warn("send buffer full, closing connection",
			zap.String("principal_id", c.principal.ID),
		)
		c.Close()
		return ErrSendBufferFull
	}
}

// Close is idempotent. It stops the write pump and closes the underlying
// socket, which unblocks the read pump.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	return c.ws.Close()
}

// ReadPump reads frames from the peer and hands each one to the handler,
// in arrival order. It blocks until the transport closes, then runs
// onClose exactly once. Call from a dedicated goroutine.
func (c *Conn) ReadPump(handler func(message []byte), onClose func()) {
	defer func() {
		c.Close()
		onClose()
	}()

	c.ws.SetReadLimit(c.maxMsgSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("read error",
					zap.String("principal_id", c.principal.ID),
					zap.Error(err),
				)
			}
			return
		}
		handler(message)
	}
}

// WritePump drains the send channel to the peer and keeps the connection
// alive with periodic pings. Call from a dedicated goroutine.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("write error",
					zap.String("principal_id", c.principal.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
