package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 128
)

// ErrConnectionClosed is returned by Send once the connection is closed.
var ErrConnectionClosed = errors.New("realtime: connection closed")

// ErrSlowConsumer is returned by Send when the outbound buffer is full; the
// connection is closed as a consequence.
var ErrSlowConsumer = errors.New("realtime: send buffer full")

// Connection wraps a websocket and serialises outbound writes through a
// buffered channel drained by a single writer goroutine. It is safe for
// concurrent use.
type Connection struct {
	ID     string
	UserID string

	ws      *websocket.Conn
	send    chan []byte
	once    sync.Once
	started atomic.Bool
	close   chan struct{}
	done    chan struct{}
}

// NewConnection constructs a Connection for the given user.
func NewConnection(userID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		close:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	c.started.Store(true)
	go c.writeLoop()
}

// Send enqueues payload for delivery. A client too slow to keep the buffer
// from filling up is disconnected.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		// closing waits for the writer; callers may hold router locks
		go c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrSlowConsumer
	}
}

// Close terminates the connection and stops the write loop. Frames still
// buffered are flushed first, bounded by writeWait.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		if c.started.Load() {
			select {
			case <-c.done:
			case <-time.After(writeWait):
			}
		}
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	defer close(c.done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			c.flush()
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
