package hub

import (
	"sync"
	"sync/atomic"
	"time"
)

// socket is the subset of *websocket.Conn the hub drives. Tests swap
// in an in-memory implementation.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

const textMessage = 1 // websocket.TextMessage

// Connection is one attached client. Auth state and topic membership
// are guarded by the hub mutex; the outbound path is a buffered channel
// drained by a single writer goroutine, so every subscriber sees frames
// in enqueue order.
type Connection struct {
	ID string

	sock         socket
	send         chan []byte
	closed       chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration

	streaming  atomic.Bool
	streamStop atomic.Bool

	// guarded by Hub.mu
	authed  bool
	userID  string
	voiceID string
	topics  map[string]struct{}
}

func newConnection(id string, sock socket, sendBuffer int, writeTimeout time.Duration) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Connection{
		ID:           id,
		sock:         sock,
		send:         make(chan []byte, sendBuffer),
		closed:       make(chan struct{}),
		writeTimeout: writeTimeout,
		topics:       make(map[string]struct{}),
	}
}

// enqueue hands a frame to the writer. It never blocks: a full buffer
// or a closed connection reports failure so the caller can isolate it.
func (c *Connection) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Connection) sendEnvelope(kind string, payload any) bool {
	frame, err := envelope(kind, payload)
	if err != nil {
		return false
	}
	return c.enqueue(frame)
}

func (c *Connection) sendError(code, message string) {
	c.sendEnvelope(MsgError, ErrorPayload{Code: code, Message: message})
}

// writeLoop is the only goroutine touching the socket write side.
func (c *Connection) writeLoop(onError func()) {
	for {
		select {
		case frame := <-c.send:
			if c.writeTimeout > 0 {
				c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.sock.WriteMessage(textMessage, frame); err != nil {
				onError()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.sock.Close()
	})
}
