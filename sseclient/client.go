// Package sseclient is a minimal client for the HTTP+SSE transport, intended
// for tests, examples, and tooling. It opens the event stream, resolves the
// announced endpoint, and posts request envelopes to it.
package sseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/tmaxmax/go-sse"
)

// ErrNoEndpoint is returned when the stream ends before announcing an
// endpoint.
var ErrNoEndpoint = errors.New("sseclient: stream ended before endpoint event")

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the slog logger used by the client.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Client connects to one session of an HTTP+SSE server. Each Connect call
// opens a fresh session; a Client is not safe for concurrent Connect calls.
type Client struct {
	httpClient *http.Client
	log        *slog.Logger
	streamURL  string

	endpointURL string
	messages    chan json.RawMessage
	body        io.ReadCloser
	done        chan struct{}
	closeOnce   sync.Once
}

// New builds a client for the stream at streamURL.
func New(streamURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		log:        slog.Default(),
		streamURL:  streamURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the event stream and blocks until the server announces the
// session endpoint. The returned sequence yields each message event's payload
// until the stream ends or ctx is cancelled. Keep-alive comments are consumed
// by the SSE parser and never surface.
func (c *Client) Connect(ctx context.Context) (iter.Seq[json.RawMessage], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	c.messages = make(chan json.RawMessage)
	c.done = make(chan struct{})
	c.body = resp.Body
	// Tear the stream down with the context so callers can end the session
	// by cancelling.
	context.AfterFunc(ctx, func() { c.Close() })

	ready := make(chan error, 1)
	go c.readStream(resp.Body, ready)

	select {
	case err := <-ready:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}

	return func(yield func(json.RawMessage) bool) {
		for msg := range c.messages {
			if !yield(msg) {
				return
			}
		}
	}, nil
}

// Endpoint returns the resolved endpoint URL. Empty until Connect returns.
func (c *Client) Endpoint() string {
	return c.endpointURL
}

// Close ends the stream. The server treats the disconnect as the end of the
// session. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.done != nil {
			close(c.done)
		}
		if c.body != nil {
			c.body.Close()
		}
	})
}

// Send posts one request envelope to the session endpoint. The server
// acknowledges with 202 Accepted; any response arrives on the stream.
func (c *Client) Send(ctx context.Context, envelope any) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.SendRaw(ctx, body)
}

// SendRaw posts a pre-encoded body to the session endpoint.
func (c *Client) SendRaw(ctx context.Context, body []byte) error {
	if c.endpointURL == "" {
		return ErrNoEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("send message: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readStream(body io.ReadCloser, ready chan<- error) {
	defer func() {
		body.Close()
		close(c.messages)
	}()

	announced := false
	for ev, err := range sse.Read(body, nil) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.log.Debug("stream read ended", slog.String("err", err.Error()))
			}
			if !announced {
				ready <- fmt.Errorf("%w: %v", ErrNoEndpoint, err)
			}
			return
		}

		switch ev.Type {
		case "endpoint":
			resolved, err := c.resolveEndpoint(ev.Data)
			if err != nil {
				if !announced {
					ready <- err
				}
				return
			}
			c.endpointURL = resolved
			if !announced {
				announced = true
				ready <- nil
			}
		case "message":
			if !announced {
				// The protocol forbids messages before the endpoint
				// announcement; drop rather than deadlock.
				c.log.Warn("message before endpoint event dropped")
				continue
			}
			select {
			case c.messages <- json.RawMessage(ev.Data):
			case <-c.done:
				return
			}
		default:
			c.log.Warn("unhandled event type", slog.String("type", ev.Type))
		}
	}
	if !announced {
		ready <- ErrNoEndpoint
	}
}

// resolveEndpoint interprets the announced endpoint relative to the stream
// URL, so servers may announce a bare path.
func (c *Client) resolveEndpoint(endpoint string) (string, error) {
	base, err := url.Parse(c.streamURL)
	if err != nil {
		return "", fmt.Errorf("parse stream URL: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint URL: %w", err)
	}
	resolved := base.ResolveReference(ref)
	if resolved.String() == "" {
		return "", errors.New("sseclient: empty endpoint URL")
	}
	return resolved.String(), nil
}
