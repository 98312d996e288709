// Package sseserver binds a server to the HTTP+SSE transport: a GET stream
// route that opens a session and an asymmetric POST route that accepts
// requests for it. Responses never travel on the POST connection; they are
// queued and delivered through the stream.
package sseserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/mcputil/go-mcp-sse/internal/logctx"
	"github.com/mcputil/go-mcp-sse/server"
	"github.com/mcputil/go-mcp-sse/sessions"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// DefaultStreamPath is where clients open the SSE stream.
	DefaultStreamPath = "/sse"
	// DefaultMessagesPath is where clients POST requests. The session id is
	// carried as a query parameter, announced via the endpoint event.
	DefaultMessagesPath = "/message"

	sessionIDParam = "session_id"

	// maxBodyBytes bounds inbound POST bodies.
	maxBodyBytes = 4 << 20
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections that
// happen before a protocol envelope exchange is possible. Protocol-level
// failures never surface here; they become error envelopes on the stream.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures a Handler.
type Option func(*config)

type config struct {
	logger       *slog.Logger
	streamPath   string
	messagesPath string
}

// WithLogger sets the slog logger used by the handler.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithStreamPath overrides the SSE stream route.
func WithStreamPath(path string) Option {
	return func(c *config) {
		if path != "" {
			c.streamPath = path
		}
	}
}

// WithMessagesPath overrides the message POST route.
func WithMessagesPath(path string) Option {
	return func(c *config) {
		if path != "" {
			c.messagesPath = path
		}
	}
}

// Handler serves the two transport routes for a server.
type Handler struct {
	mux          *http.ServeMux
	log          *slog.Logger
	srv          *server.Server
	messagesPath string
}

// New builds the transport handler over srv.
func New(srv *server.Server, opts ...Option) *Handler {
	cfg := config{
		logger:       slog.Default(),
		streamPath:   DefaultStreamPath,
		messagesPath: DefaultMessagesPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Handler{
		log:          slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		srv:          srv,
		messagesPath: cfg.messagesPath,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+cfg.streamPath, h.handleStream)
	mux.HandleFunc("POST "+cfg.messagesPath, h.handleMessage)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// lockedWriteFlusher serializes writes and flushes and refuses both once ctx
// is canceled, so a disconnecting client cannot race an in-flight frame.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// handleStream opens a new session and serves its event stream until the
// client disconnects or the session is closed elsewhere.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "accept must include text/event-stream")
		h.log.WarnContext(ctx, "sse.accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	sessionID, err := h.srv.CreateSession(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to create session")
		h.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithSessionID(ctx, sessionID)

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")

	endpoint := h.endpointURL(sessionID)
	for ev, err := range h.srv.Events(ctx, sessionID, endpoint) {
		if err != nil {
			h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
			return
		}
		if _, err := ev.WriteTo(wf); err != nil {
			h.log.DebugContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
			return
		}
		wf.Flush()
	}

	h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
}

// handleMessage accepts one request envelope for an established session. The
// body is acknowledged with 202 and the response, if any, is delivered
// through the session's stream.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	sessionID := r.URL.Query().Get(sessionIDParam)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing session_id query parameter")
		h.log.WarnContext(ctx, "message.session_id.missing")
		return
	}
	ctx = logctx.WithSessionID(ctx, sessionID)

	if ctype, err := contenttype.GetMediaType(r); err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "message.content_type.unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		h.log.WarnContext(ctx, "message.body.read.fail", slog.String("err", err.Error()))
		return
	}

	if err := h.srv.HandleMessage(ctx, sessionID, body); err != nil {
		if errors.Is(err, sessions.ErrUnknownSession) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			h.log.InfoContext(ctx, "message.session.miss")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to handle message")
		h.log.ErrorContext(ctx, "message.handle.fail", slog.String("err", err.Error()))
		return
	}

	w.WriteHeader(http.StatusAccepted)
	h.log.InfoContext(ctx, "message.accepted", slog.Duration("dur", time.Since(start)))
}

// endpointURL builds the relative POST target announced on the stream.
func (h *Handler) endpointURL(sessionID string) string {
	q := url.Values{sessionIDParam: {sessionID}}
	return h.messagesPath + "?" + q.Encode()
}
