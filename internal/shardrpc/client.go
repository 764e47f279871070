package shardrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	loadInterval = 5 * time.Second
	dialTimeout  = 10 * time.Second
)

// DispatchHandler executes a coordinator-issued dispatch request against the shard's
// own local state (its peer.Registry, via an executor.LocalTarget).
type DispatchHandler interface {
	HandleDispatch(ctx context.Context, req DispatchPayload) DispatchAckPayload
}

// Client is the shard side of the internal link: it dials the coordinator once and
// keeps that one connection for the shard process's lifetime. It does not reconnect
// when the connection drops; Run returns an error instead.
type Client struct {
	shardID       string
	advertiseAddr string
	url           string
	secret        string

	mu     sync.Mutex
	conn   *websocket.Conn
	ticket string
}

// Dial opens the internal link and sends the initial register frame. url must be the
// coordinator's internal registration endpoint (ws:// or wss://).
func Dial(ctx context.Context, rawURL, secret, shardID, advertiseAddr string) (*Client, error) {
	c := &Client{shardID: shardID, advertiseAddr: advertiseAddr, url: rawURL, secret: secret}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("parse coordinator url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.secret)

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial coordinator: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	return c.send(FrameRegister, RegisterPayload{ShardID: c.shardID, AdvertiseAddr: c.advertiseAddr})
}

func (c *Client) send(typ FrameType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame := Frame{ID: uuid.NewString(), Type: typ, Data: data}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("shardrpc client: not connected")
	}
	return c.conn.WriteJSON(frame)
}

// Run reads dispatch frames until ctx is cancelled or the connection drops, replying to
// each with handler's result. It also starts the periodic load-report loop.
func (c *Client) Run(ctx context.Context, handler DispatchHandler, loadCount func() int) error {
	go c.reportLoad(ctx, loadCount)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
			}
			c.mu.Unlock()
		case <-stop:
		}
	}()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("shardrpc client: connection closed")
		}

		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("shardrpc client: read: %w", err)
		}

		if frame.Type == FrameTicket {
			var payload TicketPayload
			if err := json.Unmarshal(frame.Data, &payload); err == nil {
				c.mu.Lock()
				c.ticket = payload.Ticket
				c.mu.Unlock()
			}
			continue
		}
		if frame.Type != FrameDispatch {
			continue // lifecycle frames have no reply; ignore anything unexpected
		}

		var req DispatchPayload
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			continue
		}

		ack := handler.HandleDispatch(ctx, req)
		ackData, err := json.Marshal(ack)
		if err != nil {
			continue
		}
		reply := Frame{ID: frame.ID, Type: FrameDispatchAck, Data: ackData}

		c.mu.Lock()
		writeErr := c.conn.WriteJSON(reply)
		c.mu.Unlock()
		if writeErr != nil {
			return fmt.Errorf("shardrpc client: write ack: %w", writeErr)
		}
	}
}

func (c *Client) reportLoad(ctx context.Context, loadCount func() int) {
	ticker := time.NewTicker(loadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.send(FrameLoad, LoadPayload{ConnectionCount: loadCount()})
		}
	}
}

// Ticket returns the most recent reconnect ticket the coordinator has issued this
// client, if any. The ticket is held in memory only; this client always authenticates
// with COORDINATION_SECRET and does not present the ticket itself.
func (c *Client) Ticket() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticket
}

// ReportLoadNow sends an out-of-band load update, used on connection accept/close so the
// coordinator's view doesn't lag a full loadInterval behind a load spike.
func (c *Client) ReportLoadNow(count int) error {
	return c.send(FrameLoad, LoadPayload{ConnectionCount: count})
}

// SendDisconnect notifies the coordinator that peerID's local socket closed.
// Fire-and-forget: the shard does not wait for or need an acknowledgement.
func (c *Client) SendDisconnect(appID, peerID string) error {
	return c.send(FrameDisconnect, DisconnectPayload{AppID: appID, PeerID: peerID})
}

// Close sends deregister and closes the socket.
func (c *Client) Close() error {
	_ = c.send(FrameDeregister, DeregisterPayload{})
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
