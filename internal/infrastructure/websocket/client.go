package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"scrapmart/internal/domain/entity"
	"scrapmart/pkg/logger"
)

// Client represents a WebSocket connection client. UserID is empty for
// anonymous connections.
type Client struct {
	ID       string
	UserID   string
	UserRole string
	Conn     *websocket.Conn

	manager   *Manager
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	rooms     map[entity.RoomKey]struct{} // guarded by manager.mutex
}

func (m *Manager) NewClient(conn *websocket.Conn, userID, userRole string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		UserRole: userRole,
		Conn:     conn,
		manager:  m,
		send:     make(chan []byte, m.opts.SendBuffer),
		done:     make(chan struct{}),
		rooms:    make(map[entity.RoomKey]struct{}),
	}
}

// Enqueue queues a frame without blocking. A client whose queue is full is
// too slow to keep up and gets disconnected.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		logger.Warn("WebSocket: Client %s send queue full, closing connection", c.ID)
		c.Close()
		return false
	}
}

// Close stops the write pump, which closes the connection and ends the read pump.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Run serves the connection until it closes. It blocks.
func (c *Client) Run(ctx context.Context) {
	c.manager.Register(ctx, c)
	go c.WritePump()
	c.ReadPump()
}

// ReadPump reads frames and handles them one at a time, so events from one
// connection are processed in the order they were sent.
func (c *Client) ReadPump() {
	m := c.manager
	defer func() {
		m.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(m.opts.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
		if c.UserID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), m.opts.WriteWait)
			defer cancel()
			if err := m.presence.Touch(ctx, c.UserID, c.ID); err != nil {
				logger.Warn("WebSocket: Failed to refresh presence for %s: %v", c.UserID, err)
			}
		}
		return nil
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket: Client %s read error: %v", c.ID, err)
			}
			return
		}
		// Any frame counts as liveness.
		c.Conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
		m.HandleClientMessage(c, frame)
	}
}

// WritePump sends queued frames and pings until the client is closed.
func (c *Client) WritePump() {
	m := c.manager
	ticker := time.NewTicker(m.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn("WebSocket: Client %s write error: %v", c.ID, err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
