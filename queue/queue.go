// Package queue defines the response-queue abstraction that hands messages
// from the request-handling execution context to the stream-serving one.
// Each session owns an ordered mailbox with at-least-once, single-consumer
// delivery semantics. Implementations exist for single-process deployments
// (memoryqueue) and for multi-process deployments behind a shared store
// (redisqueue); the dispatcher and stream encoder are written purely against
// this interface so the two are interchangeable.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNoMessage is returned by Pop when the timeout elapses with the
	// mailbox empty. It is the normal idle outcome, not a failure.
	ErrNoMessage = errors.New("queue: no message available")

	// ErrSessionClosed is returned when the session's mailbox has been
	// closed or was never registered.
	ErrSessionClosed = errors.New("queue: session closed")
)

// Message is a single queued response envelope.
type Message struct {
	// SessionID names the mailbox the message belongs to.
	SessionID string `json:"session_id"`
	// Seq is a per-session monotonic sequence number assigned at push time.
	Seq uint64 `json:"seq"`
	// Payload is the serialized protocol envelope.
	Payload json.RawMessage `json:"payload"`
	// EnqueuedAt records when the message entered the queue.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ResponseQueue is the mailbox contract shared by the request dispatcher and
// the stream encoder. All methods are safe for concurrent use; per-session
// FIFO ordering is guaranteed for a single consumer.
type ResponseQueue interface {
	// Register creates the mailbox for a session. Registering an existing
	// active session is a no-op.
	Register(ctx context.Context, sessionID string) error

	// Push appends a payload to the session's mailbox. It never blocks on
	// the consumer. Pushing to a closed or unregistered session returns
	// ErrSessionClosed.
	Push(ctx context.Context, sessionID string, payload []byte) error

	// Pop removes and returns the oldest unread message, blocking up to
	// timeout. An elapsed timeout returns ErrNoMessage; a closed session
	// returns ErrSessionClosed. Any other error is a transient backend
	// failure.
	Pop(ctx context.Context, sessionID string, timeout time.Duration) (*Message, error)

	// Active reports whether the session's mailbox exists and is open.
	Active(ctx context.Context, sessionID string) (bool, error)

	// Close releases all backend resources held for the session. It is
	// idempotent and unblocks any in-flight Pop.
	Close(ctx context.Context, sessionID string) error
}
