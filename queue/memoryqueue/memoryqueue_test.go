package memoryqueue

import (
	"testing"

	"github.com/mcputil/go-mcp-sse/queue"
	"github.com/mcputil/go-mcp-sse/queue/queuetest"
)

func TestMemoryQueue(t *testing.T) {
	queuetest.Run(t, func(t *testing.T) queue.ResponseQueue {
		return New()
	})
}

func TestReRegisterAfterCloseStartsFresh(t *testing.T) {
	q := New()
	ctx := t.Context()

	if err := q.Register(ctx, "sess"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := q.Push(ctx, "sess", []byte(`"old"`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := q.Close(ctx, "sess"); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := q.Register(ctx, "sess"); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if err := q.Push(ctx, "sess", []byte(`"new"`)); err != nil {
		t.Fatalf("push after re-register: %v", err)
	}
	msg, err := q.Pop(ctx, "sess", 0)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if string(msg.Payload) != `"new"` {
		t.Fatalf("expected fresh mailbox, got payload %s", msg.Payload)
	}
	if msg.Seq != 1 {
		t.Fatalf("expected sequence restart at 1, got %d", msg.Seq)
	}
}
