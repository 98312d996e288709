// Package stream converts a session's queued protocol envelopes into a lazy,
// unbounded sequence of framed Server-Sent Events. The sequence opens with an
// endpoint announcement, then alternates between delivered messages and
// keep-alive comments until the consumer stops or the session is closed.
package stream

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/mcputil/go-mcp-sse/internal/logctx"
	"github.com/mcputil/go-mcp-sse/queue"
	"github.com/mcputil/go-mcp-sse/sessions"
)

// DefaultPopTimeout bounds each queue wait, and therefore the keep-alive
// interval observed by clients.
const DefaultPopTimeout = 15 * time.Second

// Option configures an Encoder.
type Option func(*Encoder)

// WithPopTimeout sets the bounded wait per queue pop. Each elapsed timeout
// yields one keep-alive frame.
func WithPopTimeout(d time.Duration) Option {
	return func(e *Encoder) {
		if d > 0 {
			e.popTimeout = d
		}
	}
}

// WithLogger sets the slog logger used by the encoder.
func WithLogger(log *slog.Logger) Option {
	return func(e *Encoder) {
		if log != nil {
			e.log = log
		}
	}
}

// Encoder drains session queues into framed event sequences. It holds
// sessions by id only; lifecycle stays with the registry.
type Encoder struct {
	queue      queue.ResponseQueue
	sessions   *sessions.Registry
	popTimeout time.Duration
	log        *slog.Logger
}

// NewEncoder builds an encoder over the given backend and registry.
func NewEncoder(q queue.ResponseQueue, reg *sessions.Registry, opts ...Option) *Encoder {
	e := &Encoder{
		queue:      q,
		sessions:   reg,
		popTimeout: DefaultPopTimeout,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events returns the framed event sequence for a session. The first event
// announces endpointURL; afterwards each queued envelope is framed as a
// message event and each idle pop timeout yields a keep-alive comment. The
// sequence ends when ctx is cancelled (client disconnect), the consumer
// stops iterating, the session is closed elsewhere, or the backend fails;
// in every case the session is expired so its backend resources are
// released. Exactly one consumer may iterate a given session's events at a
// time.
func (e *Encoder) Events(ctx context.Context, sessionID, endpointURL string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		ctx := logctx.WithSessionID(ctx, sessionID)
		defer func() {
			if err := e.sessions.Expire(context.WithoutCancel(ctx), sessionID); err != nil {
				e.log.WarnContext(ctx, "failed to expire session on stream close", slog.String("err", err.Error()))
			}
		}()

		if !yield(Endpoint(endpointURL), nil) {
			return
		}

		for {
			if ctx.Err() != nil {
				e.log.DebugContext(ctx, "stream closed by client")
				return
			}

			msg, err := e.queue.Pop(ctx, sessionID, e.popTimeout)
			switch {
			case err == nil:
				e.sessions.Touch(sessionID)
				if !yield(Message(msg.Payload), nil) {
					return
				}
			case errors.Is(err, queue.ErrNoMessage):
				if !yield(KeepAlive(), nil) {
					return
				}
			case errors.Is(err, queue.ErrSessionClosed):
				e.log.DebugContext(ctx, "session closed, ending stream")
				return
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				e.log.DebugContext(ctx, "stream closed by client")
				return
			default:
				// Transient backend failure: surface it to the consumer and
				// stop; the client is expected to reconnect.
				e.log.ErrorContext(ctx, "queue pop failed", slog.String("err", err.Error()))
				yield(Event{}, err)
				return
			}
		}
	}
}
