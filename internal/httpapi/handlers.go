package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sinkr-io/sinkr/internal/logging"
	"github.com/sinkr-io/sinkr/internal/model"
	"github.com/sinkr-io/sinkr/internal/peer"
	"github.com/sinkr-io/sinkr/internal/wire"
)

// handleUpgrade implements §4.3a's upgrade path: GET /{appId}, with or without a source
// key. A sink upgrade is forwarded to whichever shard SelectShardForUpgrade picks, or
// answered with 503 when no shard is available; a source upgrade is handled on the
// coordinator itself.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appId")

	app, err := s.coordinator.GetApp(r.Context(), appID)
	if err != nil {
		logging.For(r.Context(), "handleUpgrade").Error("httpapi: get app: " + err.Error())
		http.Error(w, wire.ErrUnknown.Error(), http.StatusInternalServerError)
		return
	}
	if app == nil || !app.Enabled {
		http.Error(w, "app not found", http.StatusNotFound)
		return
	}

	key := r.URL.Query().Get("sinkrKey")
	if key == "" {
		key = r.URL.Query().Get("appKey")
	}
	if key != "" {
		if key != app.SecretKey {
			http.Error(w, wire.ErrInvalidConnection.Error(), http.StatusUnauthorized)
			return
		}
		s.handleSourceUpgrade(w, r, app)
		return
	}

	s.handleSinkUpgrade(w, r, app)
}

// handleSinkUpgrade reverse-proxies the still-unaccepted upgrade to the chosen shard's
// private address (§10): the coordinator never itself terminates a sink socket.
func (s *Server) handleSinkUpgrade(w http.ResponseWriter, r *http.Request, app *model.App) {
	shard, err := s.coordinator.SelectShardForUpgrade(r.Context())
	if err != nil {
		logging.For(r.Context(), "handleSinkUpgrade").Error("httpapi: select shard: " + err.Error())
		http.Error(w, "no shard available", http.StatusServiceUnavailable)
		return
	}

	target := &url.URL{Scheme: "http", Host: shard.AdvertiseAddr}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ServeHTTP(w, r)
}

// handleSourceUpgrade terminates the WebSocket directly on the coordinator and runs a
// read loop dispatching every Envelope through the same route table the HTTP transport
// uses, since §6 specifies identical request/reply semantics on both transports.
func (s *Server) handleSourceUpgrade(w http.ResponseWriter, r *http.Request, app *model.App) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.For(r.Context(), "handleSourceUpgrade").Error("httpapi: source upgrade failed: " + err.Error())
		return
	}

	peerID := uuid.NewString()
	if err := s.coordinator.CreatePeer(r.Context(), &model.Peer{ID: peerID, AppID: app.ID, Type: model.PeerSource}); err != nil {
		logging.For(r.Context(), "handleSourceUpgrade").Error("httpapi: create source peer: " + err.Error())
		_ = conn.Close()
		return
	}

	c := peer.NewConnection(peerID, app.ID, conn)
	s.coordinator.Local().Register(c)
	s.coordinator.Metrics().ConnectionOpened(string(model.PeerSource))

	initFrame, err := wire.NewInitFrame(uuid.NewString(), peerID)
	if err == nil {
		_ = c.Send(initFrame)
	}

	s.sourceReadLoop(c)
}

func (s *Server) sourceReadLoop(c *peer.Connection) {
	defer func() {
		s.coordinator.Local().Unregister(c.PeerID)
		c.Close()
		s.coordinator.Metrics().ConnectionClosed(string(model.PeerSource))
		_ = s.coordinator.HandleDisconnect(context.Background(), c.AppID, c.PeerID)
	}()

	for {
		_, payload, err := c.ReadMessage()
		if err != nil {
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue // malformed frame, not a valid Envelope at all; nothing to correlate a reply to
		}

		reply, _ := dispatch(context.Background(), s.coordinator, c.AppID, env)
		replyBytes, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		_ = c.SendRaw(replyBytes)
	}
}

// handleSourceHTTP implements §4.3's HTTP source request path: Authorization: Bearer
// <secretKey>, a bare Envelope body, and a reply whose HTTP status reflects only
// transport-level validation — domain failures still come back as 200 with
// {success:false, error:...} in the body, per §7.
func (s *Server) handleSourceHTTP(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appId")

	app, err := s.coordinator.GetApp(r.Context(), appID)
	if err != nil {
		logging.For(r.Context(), "handleSourceHTTP").Error("httpapi: get app: " + err.Error())
		http.Error(w, wire.ErrUnknown.Error(), http.StatusInternalServerError)
		return
	}
	if app == nil || !app.Enabled {
		http.Error(w, "app not found", http.StatusNotFound)
		return
	}

	auth := r.Header.Get("Authorization")
	secret, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || secret != app.SecretKey {
		http.Error(w, wire.ErrInvalidConnection.Error(), http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, wire.ErrInvalidRequest.Error(), http.StatusBadRequest)
		return
	}

	var env wire.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, wire.ErrInvalidRequest.Error(), http.StatusBadRequest)
		return
	}

	reply, validation := dispatch(r.Context(), s.coordinator, app.ID, env)

	w.Header().Set("Content-Type", "application/json")
	if validation {
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = json.NewEncoder(w).Encode(reply)
}
