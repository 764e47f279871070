// Package shardserver is the shard process's own private HTTP server: the far end of
// the coordinator's reverse proxy (§10), completing sink WebSocket upgrades, holding
// their connections in a local peer.Registry, and handling the two frames a sink is
// allowed to send (§4.4): a literal "ping" and "request-stored-messages".
package shardserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger_lib "github.com/s21platform/logger-lib"

	"github.com/sinkr-io/sinkr/internal/executor"
	"github.com/sinkr-io/sinkr/internal/logging"
	"github.com/sinkr-io/sinkr/internal/metrics"
	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/peer"
	"github.com/sinkr-io/sinkr/internal/shardrpc"
	"github.com/sinkr-io/sinkr/internal/store"
	"github.com/sinkr-io/sinkr/internal/wire"
)

type Server struct {
	store    store.Store
	registry *peer.Registry
	rpc      *shardrpc.Client
	target   *executor.LocalTarget
	upgrader websocket.Upgrader
	logger   logger_lib.LoggerInterface
	metrics  *metrics.Metrics
}

func New(st store.Store, rpc *shardrpc.Client, m *metrics.Metrics, logger logger_lib.LoggerInterface) *Server {
	registry := peer.NewRegistry()
	return &Server{
		store:    st,
		registry: registry,
		rpc:      rpc,
		target:   executor.NewLocalTarget(registry),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
		metrics:  m,
	}
}

// Registry exposes the shard's local peer.Registry for LocalDispatchHandler wiring.
func (s *Server) Registry() *peer.Registry { return s.registry }

// Target exposes the shard's LocalTarget, satisfying the other end of a
// shardrpc.DispatchHandler via executor.NewLocalDispatchHandler.
func (s *Server) Target() executor.Target { return s.target }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(s.logger))
	r.Get("/{appId}", s.handleUpgrade)
	return r
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appId")
	logger := logging.For(r.Context(), "handleUpgrade")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("shardserver: upgrade failed: " + err.Error())
		return
	}

	peerID := uuid.NewString()
	if err := s.store.CreatePeer(r.Context(), &model.Peer{ID: peerID, AppID: appID, Type: model.PeerSink}); err != nil {
		logger.Error("shardserver: create peer: " + err.Error())
		_ = conn.Close()
		return
	}

	c := peer.NewConnection(peerID, appID, conn)
	s.registry.Register(c)
	s.metrics.ConnectionOpened(string(model.PeerSink))
	_ = s.rpc.ReportLoadNow(s.registry.Count())

	initFrame, err := wire.NewInitFrame(uuid.NewString(), peerID)
	if err == nil {
		_ = c.Send(initFrame)
	}

	go s.readLoop(c)
}

func (s *Server) readLoop(c *peer.Connection) {
	defer func() {
		s.registry.Unregister(c.PeerID)
		c.Close()
		s.metrics.ConnectionClosed(string(model.PeerSink))
		_ = s.rpc.SendDisconnect(c.AppID, c.PeerID)
		_ = s.rpc.ReportLoadNow(s.registry.Count())
	}()

	for {
		_, payload, err := c.ReadMessage()
		if err != nil {
			return
		}
		s.handleSinkFrame(context.Background(), c, payload)
	}
}

// handleSinkFrame implements §4.4's sink-originated frame union: a literal "ping", a
// request-stored-messages event, or anything else, silently ignored.
func (s *Server) handleSinkFrame(ctx context.Context, c *peer.Connection, payload []byte) {
	if string(payload) == wire.SinkPingText {
		_ = c.SendRaw([]byte(wire.SinkPongText))
		return
	}

	var req wire.RequestStoredMessages
	if err := json.Unmarshal(payload, &req); err != nil || req.Event != wire.EventRequestStoredMessages {
		return
	}

	subscribed, err := s.store.IsSubscribed(ctx, c.AppID, c.PeerID, req.ChannelID)
	if err != nil {
		s.logger.Error("shardserver: check subscription: " + err.Error())
		return
	}
	if !subscribed {
		return
	}

	messages, err := s.store.GetStoredMessagesByIDs(ctx, c.AppID, req.ChannelID, req.MessageIDs)
	if err != nil {
		s.logger.Error("shardserver: get stored messages: " + err.Error())
		return
	}

	for _, m := range messages {
		var stored wire.StoredMessageData
		if err := json.Unmarshal(m.Data, &stored); err != nil {
			continue
		}
		frame, err := wire.NewMessageFrame(m.ID, wire.MessageData{
			Event:   stored.Event,
			From:    wire.FromChannel(req.ChannelID),
			Message: stored.Message,
		})
		if err != nil {
			continue
		}
		_ = c.Send(frame)
	}
}

// HandleDispatch satisfies shardrpc.DispatchHandler, delegating to the shard's own
// LocalTarget — the coordinator asks this shard to execute one fan-out step against
// whatever sinks it happens to hold.
func (s *Server) HandleDispatch(ctx context.Context, req shardrpc.DispatchPayload) shardrpc.DispatchAckPayload {
	return executor.NewLocalDispatchHandler(s.target).HandleDispatch(ctx, req)
}
