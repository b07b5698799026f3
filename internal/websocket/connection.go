package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Options tunes per-connection buffering and timeouts
type Options struct {
	SendBuffer      int
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	// AllowedOrigins restricts browser upgrades; empty or "*" allows any origin
	AllowedOrigins  []string
}

// DefaultOptions returns the transport defaults
func DefaultOptions() Options {
	return Options{
		SendBuffer:      256,
		WriteTimeout:    5 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageBytes: 8 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	return o
}

// frame is one queued write; closing frames end the connection after earlier frames flush
type frame struct {
	data    []byte
	closing bool
}

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so a single
// writer goroutine drains a buffered queue; enqueueing never touches the network
type Connection struct {
	conn      *websocket.Conn
	id        string
	writeCh   chan frame
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	drainOnce sync.Once
}

// NewConnection wraps an upgraded socket and starts its writer
func NewConnection(conn *websocket.Conn, id string, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		id:      id,
		writeCh: make(chan frame, opts.SendBuffer),
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	defer c.Close()

	for {
		select {
		case f := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if f.closing {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.WriteRaw(data)
}

// WriteRaw queues an encoded frame without blocking
// FUNCTIONAL DISCOVERY: A full queue means the peer is not keeping up; the
// caller decides whether to drop the connection
func (c *Connection) WriteRaw(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- frame{data: data}:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// CloseGracefully flushes frames queued so far, sends a close frame, then closes
func (c *Connection) CloseGracefully() {
	c.drainOnce.Do(func() {
		select {
		case c.writeCh <- frame{closing: true}:
		case <-c.ctx.Done():
		default:
			_ = c.Close()
		}
	})
}

// Close tears the connection down immediately
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection has been closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// GetConnectionID returns the server-assigned id
func (c *Connection) GetConnectionID() string {
	return c.id
}

// Pending returns the number of queued frames
func (c *Connection) Pending() int {
	return len(c.writeCh)
}
