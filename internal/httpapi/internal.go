package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/sinkr-io/sinkr/internal/logging"
	"github.com/sinkr-io/sinkr/internal/pkg/ticket"
	"github.com/sinkr-io/sinkr/internal/shardrpc"
)

// handleShardRegister accepts the internal WebSocket link a shard dials in on (§10),
// authenticated either by the raw COORDINATION_SECRET (a shard's first-ever connect) or
// by a previously-issued reconnect ticket. On a fresh secret-authenticated connect it
// mints and returns a ticket so the next reconnect doesn't have to resend the secret.
func (s *Server) handleShardRegister(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	presented, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	responseHeader := http.Header{}
	if presented != s.coordinationSecret {
		if _, err := s.tickets.ValidateShardTicket(presented); err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
	}

	logger := logging.For(r.Context(), "handleShardRegister")

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		logger.Error("httpapi: shard link upgrade failed: " + err.Error())
		return
	}

	shard, err := shardrpc.Accept(conn)
	if err != nil {
		logger.Error("httpapi: accept shard link: " + err.Error())
		_ = conn.Close()
		return
	}

	if err := sendTicket(conn, s.tickets, shard.ShardID); err != nil {
		logger.Error("httpapi: send shard ticket: " + err.Error())
	}

	s.coordinator.RegisterShard(shard)

	if err := shard.Run(context.Background()); err != nil {
		logger.Error("httpapi: shard link " + shard.ShardID + " closed: " + err.Error())
	}
}

func sendTicket(conn *websocket.Conn, tickets *ticket.Generator, shardID string) error {
	raw, err := tickets.GenerateShardTicket(shardID)
	if err != nil {
		return fmt.Errorf("generate ticket: %w", err)
	}
	data, err := json.Marshal(shardrpc.TicketPayload{Ticket: raw})
	if err != nil {
		return fmt.Errorf("marshal ticket payload: %w", err)
	}
	return conn.WriteJSON(shardrpc.Frame{Type: shardrpc.FrameTicket, Data: data})
}
