// Package memoryqueue provides an in-process implementation of
// queue.ResponseQueue backed by per-session slices and channel wakeups. It is
// suitable for single-node deployments and tests; state is local to the
// process, so it cannot serve setups where the POST handler and the SSE
// stream run in different processes.
package memoryqueue

import (
	"context"
	"sync"
	"time"

	"github.com/mcputil/go-mcp-sse/queue"
)

// Queue implements queue.ResponseQueue in process memory.
type Queue struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
}

type mailbox struct {
	mu   sync.Mutex
	msgs []*queue.Message
	seq  uint64
	// notify carries a wakeup per push; capacity 1 is enough for the
	// single-consumer contract.
	notify chan struct{}
	done   chan struct{}
	closed bool
}

// New creates an empty in-memory queue.
func New() *Queue {
	return &Queue{mailboxes: make(map[string]*mailbox)}
}

func (q *Queue) Register(ctx context.Context, sessionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if mb, ok := q.mailboxes[sessionID]; ok && !mb.isClosed() {
		return nil
	}
	q.mailboxes[sessionID] = &mailbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	return nil
}

func (q *Queue) Push(ctx context.Context, sessionID string, payload []byte) error {
	mb := q.mailbox(sessionID)
	if mb == nil {
		return queue.ErrSessionClosed
	}

	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return queue.ErrSessionClosed
	}
	mb.seq++
	mb.msgs = append(mb.msgs, &queue.Message{
		SessionID:  sessionID,
		Seq:        mb.seq,
		Payload:    append([]byte(nil), payload...),
		EnqueuedAt: time.Now(),
	})
	mb.mu.Unlock()

	select {
	case mb.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Pop(ctx context.Context, sessionID string, timeout time.Duration) (*queue.Message, error) {
	mb := q.mailbox(sessionID)
	if mb == nil {
		return nil, queue.ErrSessionClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		mb.mu.Lock()
		if mb.closed {
			mb.mu.Unlock()
			return nil, queue.ErrSessionClosed
		}
		if len(mb.msgs) > 0 {
			msg := mb.msgs[0]
			mb.msgs = mb.msgs[1:]
			mb.mu.Unlock()
			return msg, nil
		}
		mb.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-mb.done:
			return nil, queue.ErrSessionClosed
		case <-timer.C:
			return nil, queue.ErrNoMessage
		case <-mb.notify:
		}
	}
}

func (q *Queue) Active(ctx context.Context, sessionID string) (bool, error) {
	mb := q.mailbox(sessionID)
	return mb != nil, nil
}

func (q *Queue) Close(ctx context.Context, sessionID string) error {
	q.mu.Lock()
	mb, ok := q.mailboxes[sessionID]
	if ok {
		delete(q.mailboxes, sessionID)
	}
	q.mu.Unlock()
	if !ok {
		return nil
	}

	mb.mu.Lock()
	if !mb.closed {
		mb.closed = true
		mb.msgs = nil
		close(mb.done)
	}
	mb.mu.Unlock()
	return nil
}

// mailbox returns the open mailbox for sessionID, or nil if it does not
// exist or has been closed.
func (q *Queue) mailbox(sessionID string) *mailbox {
	q.mu.Lock()
	defer q.mu.Unlock()
	mb, ok := q.mailboxes[sessionID]
	if !ok || mb.isClosed() {
		return nil
	}
	return mb
}

func (mb *mailbox) isClosed() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.closed
}

var _ queue.ResponseQueue = (*Queue)(nil)
