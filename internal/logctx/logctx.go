// Package logctx enriches slog records with request-scoped session and RPC
// attributes carried on the context, so every component logging inside a
// dispatch or stream gets correlated output without threading loggers around.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps an slog.Handler, appending session and RPC groups found on
// the context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		r.AddAttrs(slog.Group("sess", slog.String("id", id)))
	}
	if m, ok := ctx.Value(rpcKey{}).(*RPC); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", m.Method),
			slog.String("id", m.ID),
		))
	}
	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type sessionIDKey struct{}

// WithSessionID attaches the session id to the context for logging.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, sessionID)
}

type rpcKey struct{}

// RPC identifies the protocol call being served.
type RPC struct {
	Method string
	ID     string
}

// WithRPC attaches the RPC descriptor to the context for logging.
func WithRPC(ctx context.Context, rpc *RPC) context.Context {
	return context.WithValue(ctx, rpcKey{}, rpc)
}
