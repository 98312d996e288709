// Package server wires the session registry, dispatch registry, queue
// backend, and stream encoder into one MCP server object. The server is an
// explicit value created once at process start and passed by reference to
// all request-handling code paths; it keeps no process-global state.
//
// The server is transport-agnostic: HandleMessage accepts a decoded request
// body from any inbound channel (HTTP POST handler, direct call, test
// harness) and delivers the response through the session's queue, never
// through a transport of its own.
package server

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/mcputil/go-mcp-sse/dispatch"
	"github.com/mcputil/go-mcp-sse/internal/jsonrpc"
	"github.com/mcputil/go-mcp-sse/mcp"
	"github.com/mcputil/go-mcp-sse/queue"
	"github.com/mcputil/go-mcp-sse/sessions"
	"github.com/mcputil/go-mcp-sse/stream"
)

// Option configures a Server.
type Option func(*config)

type config struct {
	logger       *slog.Logger
	instructions string
	idleTTL      time.Duration
	popTimeout   time.Duration
}

// WithLogger sets the slog logger shared by the server and its components.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithInstructions sets the usage instructions surfaced in the initialize
// result.
func WithInstructions(instructions string) Option {
	return func(c *config) { c.instructions = instructions }
}

// WithIdleTTL sets the idle lifetime of sessions.
func WithIdleTTL(ttl time.Duration) Option {
	return func(c *config) { c.idleTTL = ttl }
}

// WithPopTimeout sets the bounded queue wait of the stream encoder, which is
// also the keep-alive interval.
func WithPopTimeout(d time.Duration) Option {
	return func(c *config) { c.popTimeout = d }
}

// Server is the session-scoped message-delivery engine.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	log          *slog.Logger

	queue    queue.ResponseQueue
	sessions *sessions.Registry
	dispatch *dispatch.Registry
	encoder  *stream.Encoder
}

// New builds a server named for discovery, bound to the given queue backend.
// Selecting memoryqueue keeps everything in-process; selecting redisqueue
// lets POST handling and stream serving run in different processes.
func New(name, version string, q queue.ResponseQueue, opts ...Option) *Server {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	sessOpts := []sessions.Option{sessions.WithLogger(cfg.logger)}
	if cfg.idleTTL > 0 {
		sessOpts = append(sessOpts, sessions.WithIdleTTL(cfg.idleTTL))
	}
	reg := sessions.NewRegistry(q, sessOpts...)

	encOpts := []stream.Option{stream.WithLogger(cfg.logger)}
	if cfg.popTimeout > 0 {
		encOpts = append(encOpts, stream.WithPopTimeout(cfg.popTimeout))
	}

	return &Server{
		info:         mcp.ImplementationInfo{Name: name, Version: version},
		instructions: cfg.instructions,
		log:          cfg.logger,
		queue:        q,
		sessions:     reg,
		dispatch:     dispatch.NewRegistry(dispatch.WithLogger(cfg.logger)),
		encoder:      stream.NewEncoder(q, reg, encOpts...),
	}
}

// RegisterTool registers a tool handler. Build registrations with
// dispatch.NewTool.
func (s *Server) RegisterTool(reg dispatch.Registration) error {
	return s.dispatch.RegisterTool(reg)
}

// RegisterPrompt registers a prompt handler. Build registrations with
// dispatch.NewPrompt.
func (s *Server) RegisterPrompt(reg dispatch.Registration) error {
	return s.dispatch.RegisterPrompt(reg)
}

// RegisterResource registers a resource handler. Build registrations with
// dispatch.NewResource.
func (s *Server) RegisterResource(reg dispatch.Registration) error {
	return s.dispatch.RegisterResource(reg)
}

// CreateSession mints a new session bound to the queue backend.
func (s *Server) CreateSession(ctx context.Context) (string, error) {
	return s.sessions.Create(ctx)
}

// Sessions exposes the session registry, e.g. to run its idle sweeper.
func (s *Server) Sessions() *sessions.Registry {
	return s.sessions
}

// Dispatch exposes the dispatch registry for direct inspection.
func (s *Server) Dispatch() *dispatch.Registry {
	return s.dispatch
}

// Events returns the framed event stream for a session. See
// stream.Encoder.Events.
func (s *Server) Events(ctx context.Context, sessionID, endpointURL string) iter.Seq2[stream.Event, error] {
	return s.encoder.Events(ctx, sessionID, endpointURL)
}

// Info returns the server's implementation descriptor.
func (s *Server) Info() mcp.ImplementationInfo {
	return s.info
}

func (s *Server) capabilities() mcp.ServerCapabilities {
	var caps mcp.ServerCapabilities
	caps.Prompts = &struct {
		ListChanged bool `json:"listChanged"`
	}{}
	caps.Resources = &struct {
		ListChanged bool `json:"listChanged"`
		Subscribe   bool `json:"subscribe"`
	}{}
	caps.Tools = &struct {
		ListChanged bool `json:"listChanged"`
	}{}
	caps.Completions = &struct{}{}
	return caps
}

// Notify pushes a server-initiated notification onto a session's queue.
func (s *Server) Notify(ctx context.Context, sessionID, method string, params any) error {
	if err := s.sessions.Validate(ctx, sessionID); err != nil {
		return err
	}
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.pushEnvelope(ctx, sessionID, note)
}
