// Package sessions tracks the logical client connections through which
// asynchronously produced responses are delivered. The registry mints opaque
// session identifiers, binds each to a mailbox in the queue backend, and
// enforces idle expiry. The dispatcher and the stream encoder hold sessions
// by id only; the registry is the sole owner of session lifecycle.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcputil/go-mcp-sse/queue"
)

// ErrUnknownSession is returned when an operation references a session id
// that was never created or has expired.
var ErrUnknownSession = errors.New("sessions: unknown or expired session")

// DefaultIdleTTL is the idle lifetime applied when none is configured.
const DefaultIdleTTL = 30 * time.Minute

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTTL sets the idle lifetime of a session. Sessions with no push,
// pop, or validation activity for this long are expired by the sweeper.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the slog logger used by the registry.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

type record struct {
	createdAt time.Time
	lastSeen  time.Time
}

// Registry creates and tracks sessions. It keeps a local activity cache and
// delegates liveness to the queue backend, so a session created by another
// process (sharing the same backend) validates here too.
type Registry struct {
	queue queue.ResponseQueue
	log   *slog.Logger
	ttl   time.Duration

	mu       sync.Mutex
	sessions map[string]*record
}

// NewRegistry builds a registry bound to the given queue backend.
func NewRegistry(q queue.ResponseQueue, opts ...Option) *Registry {
	r := &Registry{
		queue:    q,
		log:      slog.Default(),
		ttl:      DefaultIdleTTL,
		sessions: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create mints a new session id and registers its mailbox with the queue
// backend. The id is a UUIDv4, which carries 122 bits of entropy.
func (r *Registry) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := r.queue.Register(ctx, id); err != nil {
		return "", err
	}

	now := time.Now()
	r.mu.Lock()
	r.sessions[id] = &record{createdAt: now, lastSeen: now}
	r.mu.Unlock()

	r.log.DebugContext(ctx, "session created", slog.String("session_id", id))
	return id, nil
}

// Validate checks that the session exists and is live, returning
// ErrUnknownSession otherwise. A successful validation counts as activity.
func (r *Registry) Validate(ctx context.Context, sessionID string) error {
	now := time.Now()

	r.mu.Lock()
	rec, ok := r.sessions[sessionID]
	if ok {
		if now.Sub(rec.lastSeen) > r.ttl {
			delete(r.sessions, sessionID)
			r.mu.Unlock()
			_ = r.queue.Close(context.WithoutCancel(ctx), sessionID)
			return ErrUnknownSession
		}
		rec.lastSeen = now
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	// Not known locally: the session may have been created by another
	// process sharing the backend.
	active, err := r.queue.Active(ctx, sessionID)
	if err != nil {
		return err
	}
	if !active {
		return ErrUnknownSession
	}

	r.mu.Lock()
	r.sessions[sessionID] = &record{createdAt: now, lastSeen: now}
	r.mu.Unlock()
	return nil
}

// Touch records activity for a session, deferring idle expiry.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	if rec, ok := r.sessions[sessionID]; ok {
		rec.lastSeen = time.Now()
	}
	r.mu.Unlock()
}

// Expire removes the session and releases its backend resources. It is
// idempotent.
func (r *Registry) Expire(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	_, known := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if err := r.queue.Close(context.WithoutCancel(ctx), sessionID); err != nil {
		return err
	}
	if known {
		r.log.DebugContext(ctx, "session expired", slog.String("session_id", sessionID))
	}
	return nil
}

// Len reports the number of locally tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns the ids of locally tracked sessions, for broadcasting
// server-initiated notifications. Sessions served by other processes sharing
// the backend are not included.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Run sweeps idle sessions until ctx is cancelled. It is intended to run in
// its own goroutine; backends with native TTLs (Redis) expire keys on their
// own, so the sweeper mainly keeps the local cache and memory backends tidy.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Registry) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	var idle []string
	for id, rec := range r.sessions {
		if rec.lastSeen.Before(cutoff) {
			idle = append(idle, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		if err := r.queue.Close(context.WithoutCancel(ctx), id); err != nil {
			r.log.WarnContext(ctx, "failed to close idle session", slog.String("session_id", id), slog.String("err", err.Error()))
			continue
		}
		r.log.InfoContext(ctx, "idle session swept", slog.String("session_id", id))
	}
}
