package ws

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Connection represents a WebSocket connection
type Connection struct {
	ID   string
	Send chan []byte
	Hub  *Hub

	// rooms is guarded by Hub.mu
	rooms   map[string]struct{}
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnection creates an unregistered connection. A nil limiter disables throttling.
func NewConnection(hub *Hub, limiter *rate.Limiter) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		ID:      uuid.New().String(),
		Send:    make(chan []byte, 256),
		Hub:     hub,
		rooms:   make(map[string]struct{}),
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ConnID implements service.Replier
func (c *Connection) ConnID() string { return c.ID }

// Reply implements service.Replier
func (c *Connection) Reply(msgType string, payload interface{}) {
	c.Hub.SendTo(c, msgType, payload)
}

// Context is cancelled when the connection closes
func (c *Connection) Context() context.Context { return c.ctx }

func (c *Connection) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}
