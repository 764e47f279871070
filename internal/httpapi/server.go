// Package httpapi is the coordinator's externally-reachable HTTP/WS front door: the
// GET/POST /{appId} pair of §6 (sink and source upgrade, and the source's HTTP
// transport), plus the internal shard-registration endpoint of §10.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	logger_lib "github.com/s21platform/logger-lib"

	"github.com/sinkr-io/sinkr/internal/coordinator"
	"github.com/sinkr-io/sinkr/internal/logging"
	"github.com/sinkr-io/sinkr/internal/pkg/ticket"
)

type Server struct {
	coordinator        *coordinator.Coordinator
	coordinationSecret string
	tickets            *ticket.Generator
	upgrader           websocket.Upgrader
	logger             logger_lib.LoggerInterface
}

func New(c *coordinator.Coordinator, coordinationSecret string, tickets *ticket.Generator, logger logger_lib.LoggerInterface) *Server {
	return &Server{
		coordinator:        c,
		coordinationSecret: coordinationSecret,
		tickets:            tickets,
		upgrader:           websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:             logger,
	}
}

// PublicRouter serves the §6 surface every source and sink actually connects to.
func (s *Server) PublicRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(s.logger))
	r.Get("/{appId}", s.handleUpgrade)
	r.Post("/{appId}", s.handleSourceHTTP)
	return r
}

// InternalRouter serves the shard-registration endpoint of §10, meant to be bound to a
// separate, non-publicly-routed port (CoordinatorConfig.InternalPort).
func (s *Server) InternalRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(s.logger))
	r.Get("/shards", s.handleShardRegister)
	return r
}
