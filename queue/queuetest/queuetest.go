// Package queuetest provides a conformance test suite for
// queue.ResponseQueue implementations. Backends run the suite against a
// factory so memory and shared-store implementations are held to the same
// contract.
package queuetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mcputil/go-mcp-sse/queue"
)

// Factory creates a fresh ResponseQueue instance for a test.
type Factory func(t *testing.T) queue.ResponseQueue

// Run executes the full ResponseQueue conformance suite.
func Run(t *testing.T, factory Factory) {
	t.Run("PushPopPreservesOrder", func(t *testing.T) { testPushPopPreservesOrder(t, factory) })
	t.Run("PopTimeoutReturnsNoMessage", func(t *testing.T) { testPopTimeout(t, factory) })
	t.Run("PopBlocksUntilPush", func(t *testing.T) { testPopBlocksUntilPush(t, factory) })
	t.Run("SessionIsolation", func(t *testing.T) { testSessionIsolation(t, factory) })
	t.Run("PushToUnknownSessionRejected", func(t *testing.T) { testPushUnknownSession(t, factory) })
	t.Run("PushAfterCloseRejected", func(t *testing.T) { testPushAfterClose(t, factory) })
	t.Run("PopAfterCloseReturnsSessionClosed", func(t *testing.T) { testPopAfterClose(t, factory) })
	t.Run("CloseUnblocksPop", func(t *testing.T) { testCloseUnblocksPop(t, factory) })
	t.Run("CloseIsIdempotent", func(t *testing.T) { testCloseIdempotent(t, factory) })
	t.Run("ActiveTracksLifecycle", func(t *testing.T) { testActiveLifecycle(t, factory) })
	t.Run("SequenceNumbersMonotonic", func(t *testing.T) { testSequenceMonotonic(t, factory) })
	t.Run("ConcurrentPushersLoseNothing", func(t *testing.T) { testConcurrentPushers(t, factory) })
}

func register(t *testing.T, q queue.ResponseQueue, sessionID string) {
	t.Helper()
	if err := q.Register(context.Background(), sessionID); err != nil {
		t.Fatalf("register %s: %v", sessionID, err)
	}
	t.Cleanup(func() { _ = q.Close(context.Background(), sessionID) })
}

func testPushPopPreservesOrder(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-order")

	const n = 20
	for i := 0; i < n; i++ {
		if err := q.Push(ctx, "sess-order", []byte(fmt.Sprintf(`{"seq":%d}`, i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		msg, err := q.Pop(ctx, "sess-order", 2*time.Second)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		want := fmt.Sprintf(`{"seq":%d}`, i)
		if string(msg.Payload) != want {
			t.Fatalf("pop %d: expected %s, got %s", i, want, msg.Payload)
		}
	}
}

func testPopTimeout(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-idle")

	start := time.Now()
	msg, err := q.Pop(ctx, "sess-idle", 150*time.Millisecond)
	if !errors.Is(err, queue.ErrNoMessage) {
		t.Fatalf("expected ErrNoMessage, got msg=%v err=%v", msg, err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("pop returned after %v, expected it to block near the timeout", elapsed)
	}
}

func testPopBlocksUntilPush(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-block")

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = q.Push(ctx, "sess-block", []byte(`"late"`))
	}()

	msg, err := q.Pop(ctx, "sess-block", 5*time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if string(msg.Payload) != `"late"` {
		t.Fatalf("expected late payload, got %s", msg.Payload)
	}
}

func testSessionIsolation(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-a")
	register(t, q, "sess-b")

	if err := q.Push(ctx, "sess-a", []byte(`"for-a"`)); err != nil {
		t.Fatalf("push: %v", err)
	}

	if msg, err := q.Pop(ctx, "sess-b", 150*time.Millisecond); !errors.Is(err, queue.ErrNoMessage) {
		t.Fatalf("session b saw foreign message: msg=%v err=%v", msg, err)
	}

	msg, err := q.Pop(ctx, "sess-a", 2*time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if string(msg.Payload) != `"for-a"` {
		t.Fatalf("expected for-a, got %s", msg.Payload)
	}
}

func testPushUnknownSession(t *testing.T, factory Factory) {
	q := factory(t)
	if err := q.Push(context.Background(), "sess-never-registered", []byte(`{}`)); !errors.Is(err, queue.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func testPushAfterClose(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-closed-push")
	if err := q.Close(ctx, "sess-closed-push"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Push(ctx, "sess-closed-push", []byte(`{}`)); !errors.Is(err, queue.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func testPopAfterClose(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-closed-pop")
	if err := q.Close(ctx, "sess-closed-pop"); err != nil {
		t.Fatalf("close: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx, "sess-closed-pop", 5*time.Second)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, queue.ErrSessionClosed) {
			t.Fatalf("expected ErrSessionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pop hung on a closed session")
	}
}

func testCloseUnblocksPop(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-unblock")

	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx, "sess-unblock", 10*time.Second)
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	if err := q.Close(ctx, "sess-unblock"); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-done:
		// Backends that poll a shared store may report the first wakeup as a
		// timeout; both outcomes mean the consumer was released.
		if !errors.Is(err, queue.ErrSessionClosed) && !errors.Is(err, queue.ErrNoMessage) {
			t.Fatalf("expected ErrSessionClosed or ErrNoMessage, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close did not unblock pop")
	}
}

func testCloseIdempotent(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-idem")
	for i := 0; i < 3; i++ {
		if err := q.Close(ctx, "sess-idem"); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
}

func testActiveLifecycle(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()

	if active, err := q.Active(ctx, "sess-life"); err != nil || active {
		t.Fatalf("expected inactive before register, got active=%v err=%v", active, err)
	}
	register(t, q, "sess-life")
	if active, err := q.Active(ctx, "sess-life"); err != nil || !active {
		t.Fatalf("expected active after register, got active=%v err=%v", active, err)
	}
	if err := q.Close(ctx, "sess-life"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if active, err := q.Active(ctx, "sess-life"); err != nil || active {
		t.Fatalf("expected inactive after close, got active=%v err=%v", active, err)
	}
}

func testSequenceMonotonic(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-seq")

	for i := 0; i < 5; i++ {
		if err := q.Push(ctx, "sess-seq", []byte(`{}`)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	var last uint64
	for i := 0; i < 5; i++ {
		msg, err := q.Pop(ctx, "sess-seq", 2*time.Second)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if msg.Seq <= last {
			t.Fatalf("sequence not monotonic: %d after %d", msg.Seq, last)
		}
		if msg.SessionID != "sess-seq" {
			t.Fatalf("expected session id sess-seq, got %s", msg.SessionID)
		}
		last = msg.Seq
	}
}

func testConcurrentPushers(t *testing.T, factory Factory) {
	q := factory(t)
	ctx := context.Background()
	register(t, q, "sess-conc")

	const pushers = 8
	const perPusher = 25

	var wg sync.WaitGroup
	for p := 0; p < pushers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPusher; i++ {
				if err := q.Push(ctx, "sess-conc", []byte(`{}`)); err != nil {
					t.Errorf("push: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < pushers*perPusher; i++ {
		if _, err := q.Pop(ctx, "sess-conc", 2*time.Second); err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
	}
	if _, err := q.Pop(ctx, "sess-conc", 100*time.Millisecond); !errors.Is(err, queue.ErrNoMessage) {
		t.Fatalf("expected drained queue, got %v", err)
	}
}
