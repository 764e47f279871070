package shardrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const dispatchTimeout = 5 * time.Second

// RemoteShard is the coordinator's handle on one shard's internal link connection. It
// implements executor.Target indirectly through internal/executor's RemoteTarget
// wrapper, which calls Dispatch.
type RemoteShard struct {
	ShardID       string
	AdvertiseAddr string

	// OnLoad and OnClose let the coordinator keep its load table and shard registry
	// (internal/loadstore) in sync with this connection's lifecycle. OnDisconnect
	// relays a locally-closed sink to the coordinator's channel.Engine.
	OnLoad       func(count int)
	OnClose      func()
	OnDisconnect func(appID, peerID string)

	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan DispatchAckPayload
	closed  bool
}

// Accept reads the mandatory first frame off conn, which must be a register frame, and
// returns the resulting handle. The caller is expected to have already authenticated
// the connection (bearer COORDINATION_SECRET check) before upgrading.
func Accept(conn *websocket.Conn) (*RemoteShard, error) {
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("shardrpc: read register frame: %w", err)
	}
	if frame.Type != FrameRegister {
		return nil, fmt.Errorf("shardrpc: expected register frame, got %q", frame.Type)
	}
	var reg RegisterPayload
	if err := json.Unmarshal(frame.Data, &reg); err != nil {
		return nil, fmt.Errorf("shardrpc: decode register frame: %w", err)
	}

	return &RemoteShard{
		ShardID:       reg.ShardID,
		AdvertiseAddr: reg.AdvertiseAddr,
		conn:          conn,
		pending:       make(map[string]chan DispatchAckPayload),
	}, nil
}

// Run reads frames until the connection drops or ctx is cancelled, routing load and
// deregister frames to their callbacks and dispatch acks to their waiting Dispatch call.
func (s *RemoteShard) Run(ctx context.Context) error {
	defer s.close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-stop:
		}
	}()

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("shardrpc: read: %w", err)
		}

		switch frame.Type {
		case FrameLoad:
			var payload LoadPayload
			if err := json.Unmarshal(frame.Data, &payload); err == nil && s.OnLoad != nil {
				s.OnLoad(payload.ConnectionCount)
			}
		case FrameDisconnect:
			var payload DisconnectPayload
			if err := json.Unmarshal(frame.Data, &payload); err == nil && s.OnDisconnect != nil {
				s.OnDisconnect(payload.AppID, payload.PeerID)
			}
		case FrameDeregister:
			return nil // close() via defer notifies OnClose
		case FrameDispatchAck:
			var ack DispatchAckPayload
			if err := json.Unmarshal(frame.Data, &ack); err != nil {
				continue
			}
			s.resolve(frame.ID, ack)
		default:
			// dispatch frames only flow coordinator->shard; anything else is ignored
		}
	}
}

func (s *RemoteShard) resolve(id string, ack DispatchAckPayload) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok {
		ch <- ack
	}
}

// Dispatch sends req to the shard and blocks for its ack, bounded by dispatchTimeout.
func (s *RemoteShard) Dispatch(ctx context.Context, req DispatchPayload) (DispatchAckPayload, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return DispatchAckPayload{}, err
	}
	id := uuid.NewString()
	frame := Frame{ID: id, Type: FrameDispatch, Data: data}

	ch := make(chan DispatchAckPayload, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return DispatchAckPayload{}, fmt.Errorf("shardrpc: shard %s connection closed", s.ShardID)
	}
	s.pending[id] = ch
	err = s.conn.WriteJSON(frame)
	s.mu.Unlock()
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return DispatchAckPayload{}, fmt.Errorf("shardrpc: write dispatch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return DispatchAckPayload{}, fmt.Errorf("shardrpc: dispatch to %s timed out: %w", s.ShardID, ctx.Err())
	}
}

func (s *RemoteShard) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.pending {
		ch <- DispatchAckPayload{Error: fmt.Sprintf("shardrpc: shard %s connection closed", s.ShardID)}
		delete(s.pending, id)
	}
	s.mu.Unlock()

	_ = s.conn.Close()
	if s.OnClose != nil {
		s.OnClose()
	}
}
