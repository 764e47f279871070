// Package logging threads github.com/s21platform/logger-lib through request-scoped
// contexts exactly as the teacher does: built once in main, stashed in context under
// config.KeyLogger by Middleware, and read back per handler with FromContext/For. Long-
// lived per-connection goroutines (the WebSocket read pump, a shard's dispatch loop)
// have no single request context spanning their lifetime, so those keep the logger they
// were constructed with instead of going through context at all.
package logging

import (
	"context"
	"net/http"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/sinkr-io/sinkr/internal/config"
)

// New builds the process-wide logger, once, in main.
func New(host, port, serviceName, env string) logger_lib.LoggerInterface {
	return logger_lib.New(host, port, serviceName, env)
}

// WithLogger stashes logger in ctx under the same key the teacher's middleware uses.
func WithLogger(ctx context.Context, logger logger_lib.LoggerInterface) context.Context {
	return context.WithValue(ctx, config.KeyLogger, logger)
}

// Middleware stashes logger into every request's context so downstream handlers can
// fetch it with FromContext/For, matching the teacher's internal/infra middleware chain
// (not shipped in the retrieval pack, reconstructed here from its call sites).
func Middleware(logger logger_lib.LoggerInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}

// FromContext reads the logger back, following the teacher's call shape in every HTTP
// handler. For() is a thin wrapper that also tags the call site via AddFuncName, since
// every teacher call site does this immediately after fetching the logger.
func FromContext(ctx context.Context) logger_lib.LoggerInterface {
	return logger_lib.FromContext(ctx, config.KeyLogger)
}

// For fetches the context logger and tags it with funcName, matching the teacher's
// per-operation naming convention ("Subscribe", "Dispatch", ...).
func For(ctx context.Context, funcName string) logger_lib.LoggerInterface {
	logger := FromContext(ctx)
	logger.AddFuncName(funcName)
	return logger
}
