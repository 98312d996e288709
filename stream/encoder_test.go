package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mcputil/go-mcp-sse/queue"
	"github.com/mcputil/go-mcp-sse/queue/memoryqueue"
	"github.com/mcputil/go-mcp-sse/sessions"
)

func TestEventEncoding(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{"endpoint", Endpoint("/message?session_id=abc"), "event: endpoint\ndata: /message?session_id=abc\n\n"},
		{"message", Message([]byte(`{"jsonrpc":"2.0","result":"sunny","id":1}`)), "event: message\ndata: {\"jsonrpc\":\"2.0\",\"result\":\"sunny\",\"id\":1}\n\n"},
		{"keep-alive comment", KeepAlive(), ": keep-alive\n\n"},
		{"multi-line data", Event{Name: "message", Data: "a\nb"}, "event: message\ndata: a\ndata: b\n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ev.Encode(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if !strings.HasSuffix(tc.ev.Encode(), "\n\n") {
				t.Fatal("frame must terminate with a blank line")
			}
		})
	}
}

func newTestEncoder(t *testing.T, opts ...Option) (*Encoder, *memoryqueue.Queue, *sessions.Registry, string) {
	t.Helper()
	q := memoryqueue.New()
	reg := sessions.NewRegistry(q)
	id, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return NewEncoder(q, reg, opts...), q, reg, id
}

func TestEventsStartWithEndpoint(t *testing.T) {
	enc, _, _, id := newTestEncoder(t, WithPopTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for ev, err := range enc.Events(ctx, id, "/message?session_id="+id) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Name != "endpoint" {
			t.Fatalf("expected endpoint event first, got %+v", ev)
		}
		if !strings.Contains(ev.Data, id) {
			t.Fatalf("endpoint must embed the session id, got %q", ev.Data)
		}
		break
	}
}

func TestEventsDeliverQueuedMessagesInOrder(t *testing.T) {
	enc, q, _, id := newTestEncoder(t, WithPopTimeout(time.Second))
	ctx := context.Background()

	for _, payload := range []string{`"one"`, `"two"`, `"three"`} {
		if err := q.Push(ctx, id, []byte(payload)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	var got []string
	for ev, err := range enc.Events(ctx, id, "/message") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Name == "message" {
			got = append(got, ev.Data)
		}
		if len(got) == 3 {
			break
		}
	}
	want := []string{`"one"`, `"two"`, `"three"`}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestEventsEmitKeepAliveOnIdle(t *testing.T) {
	enc, _, _, id := newTestEncoder(t, WithPopTimeout(30*time.Millisecond))

	var sawKeepAlive bool
	n := 0
	for ev, err := range enc.Events(context.Background(), id, "/message") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.IsComment() {
			sawKeepAlive = true
			break
		}
		n++
		if n > 3 {
			break
		}
	}
	if !sawKeepAlive {
		t.Fatal("expected a keep-alive comment on an idle stream")
	}
}

func TestConsumerStopExpiresSession(t *testing.T) {
	enc, q, reg, id := newTestEncoder(t, WithPopTimeout(20*time.Millisecond))
	ctx := context.Background()

	for range enc.Events(ctx, id, "/message") {
		break // client goes away after the endpoint event
	}

	if err := reg.Validate(ctx, id); !errors.Is(err, sessions.ErrUnknownSession) {
		t.Fatalf("expected expired session after stream close, got %v", err)
	}
	if _, err := q.Pop(ctx, id, 20*time.Millisecond); !errors.Is(err, queue.ErrSessionClosed) {
		t.Fatalf("expected released mailbox after stream close, got %v", err)
	}
}

func TestContextCancelEndsStream(t *testing.T) {
	enc, _, reg, id := newTestEncoder(t, WithPopTimeout(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, err := range enc.Events(ctx, id, "/message") {
			if err != nil {
				return
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on context cancellation")
	}
	if err := reg.Validate(context.Background(), id); !errors.Is(err, sessions.ErrUnknownSession) {
		t.Fatalf("expected expired session after cancellation, got %v", err)
	}
}

func TestSessionClosedElsewhereEndsStream(t *testing.T) {
	enc, _, reg, id := newTestEncoder(t, WithPopTimeout(20*time.Millisecond))
	ctx := context.Background()

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = reg.Expire(ctx, id)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, err := range enc.Events(ctx, id, "/message") {
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end when the session was closed elsewhere")
	}
}
