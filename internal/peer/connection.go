// Package peer implements the Peer Registry of §4.1: a per-shard in-memory index from
// peer id to live connection handle, plus iteration helpers for local fan-out.
//
// Connection is grounded on other_examples/nmxmxh-master-ovasabi__websocket.go's client
// shape: a buffered outbound channel drained by one writer goroutine per connection, so a
// slow sink never blocks the goroutine pushing frames to it (§5 "Broadcast and channel
// fan-out never block on slow consumers").
package peer

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sinkr-io/sinkr/internal/wire"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
)

// Connection is the live handle for one peer's socket.
type Connection struct {
	PeerID string
	AppID  string

	conn   *websocket.Conn
	outbox chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	dead      atomicBool
}

// NewConnection wraps an accepted *websocket.Conn and starts its write pump. Callers
// must call Close when the socket's read loop exits.
func NewConnection(peerID, appID string, conn *websocket.Conn) *Connection {
	c := &Connection{
		PeerID: peerID,
		AppID:  appID,
		conn:   conn,
		outbox: make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *Connection) writePump() {
	for {
		select {
		case payload := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.dead.set(true)
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Send enqueues frame for delivery. It never blocks the caller on a slow consumer: if
// the outbound buffer is saturated the peer is considered dead (§5 back-pressure) and
// the send fails without touching the durable Peer row — the close handler reaps that.
func (c *Connection) Send(frame wire.SinkFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.SendRaw(payload)
}

// SendRaw enqueues an already-encoded text frame (used for the literal "pong" reply).
// A send racing a concurrent Close always resolves to ErrDead rather than panicking:
// outbox is never closed (only the write pump's own <-c.closed case tears it down), so
// this never selects against a closed channel.
func (c *Connection) SendRaw(payload []byte) error {
	select {
	case <-c.closed:
		return ErrDead
	default:
	}
	select {
	case c.outbox <- payload:
		return nil
	default:
		c.dead.set(true)
		c.Close()
		return ErrDead
	}
}

// Dead reports whether a send has already failed for this connection.
func (c *Connection) Dead() bool {
	return c.dead.get()
}

// Close idempotently stops the write pump and closes the underlying socket. outbox is
// deliberately never closed: Send/SendRaw can race this from the executor's or
// shardrpc's fan-out goroutines, and a send on a closed channel would panic. The write
// pump exits on <-c.closed instead, so a live outbox with no reader is harmless.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// ReadMessage proxies to the underlying socket for the read loop owned by the caller.
func (c *Connection) ReadMessage() (messageType int, payload []byte, err error) {
	return c.conn.ReadMessage()
}
