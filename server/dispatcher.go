package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcputil/go-mcp-sse/dispatch"
	"github.com/mcputil/go-mcp-sse/internal/jsonrpc"
	"github.com/mcputil/go-mcp-sse/internal/logctx"
	"github.com/mcputil/go-mcp-sse/mcp"
	"github.com/mcputil/go-mcp-sse/queue"
)

// HandleMessage validates the session, decodes the envelope, resolves and
// invokes the handler, and pushes the response envelope onto the session's
// queue. Every request yields exactly one response with the same id, even on
// handler failure; notifications yield none. Protocol failures are delivered
// as error envelopes through the queue; only session errors and transient
// backend failures are returned to the caller.
//
// Handler invocation may block on external work, so callers should treat
// HandleMessage as blocking and schedule it on a worker goroutine, never on
// the goroutine serving the session's stream.
func (s *Server) HandleMessage(ctx context.Context, sessionID string, raw []byte) error {
	ctx = logctx.WithSessionID(ctx, sessionID)

	if err := s.sessions.Validate(ctx, sessionID); err != nil {
		s.log.WarnContext(ctx, "message rejected", slog.String("err", err.Error()))
		return err
	}

	req, derr := jsonrpc.DecodeRequest(raw)
	if derr != nil {
		s.log.WarnContext(ctx, "malformed request envelope", slog.String("err", derr.Message))
		return s.pushEnvelope(ctx, sessionID, jsonrpc.NewErrorResponse(nil, derr.Code, derr.Message, derr.Data))
	}

	ctx = logctx.WithRPC(ctx, &logctx.RPC{Method: req.Method, ID: req.ID.String()})
	s.log.DebugContext(ctx, "request received")

	result, err := s.invoke(ctx, req)
	if req.IsNotification() {
		if err != nil {
			s.log.WarnContext(ctx, "notification handler failed", slog.String("err", err.Error()))
		}
		return nil
	}

	var resp *jsonrpc.Response
	if err != nil {
		resp = s.errorResponse(ctx, req.ID, err)
	} else {
		resp, err = jsonrpc.NewResultResponse(req.ID, result)
		if err != nil {
			s.log.ErrorContext(ctx, "unserializable handler result", slog.String("err", err.Error()))
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
	}
	return s.pushEnvelope(ctx, sessionID, resp)
}

// pushEnvelope serializes an envelope onto the session's queue. A session
// that expired while the handler ran is logged and the response dropped;
// transient backend failures propagate to the caller.
func (s *Server) pushEnvelope(ctx context.Context, sessionID string, envelope any) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.queue.Push(ctx, sessionID, data); err != nil {
		if errors.Is(err, queue.ErrSessionClosed) {
			s.log.InfoContext(ctx, "session gone, response dropped")
			return nil
		}
		return fmt.Errorf("push response: %w", err)
	}
	return nil
}

// invoke routes the request to a built-in method or a registered handler.
// Panics in handlers are recovered here so a misbehaving handler cannot take
// down the dispatcher.
func (s *Server) invoke(ctx context.Context, req *jsonrpc.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "handler panic", slog.Any("panic", r))
			err = &jsonrpc.Error{Code: jsonrpc.ErrorCodeInternalError, Message: "internal error"}
		}
	}()

	switch req.Method {
	case "initialize":
		return mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities:    s.capabilities(),
			ServerInfo:      s.info,
			Instructions:    s.instructions,
		}, nil

	case "notifications/initialized":
		return nil, nil

	case "ping":
		return struct{}{}, nil

	case "tools/list":
		return struct {
			Tools []mcp.Tool `json:"tools"`
		}{Tools: s.dispatch.Tools()}, nil

	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		reg, err := s.dispatch.Lookup(dispatch.ClassTool, params.Name)
		if err != nil {
			return nil, err
		}
		return reg.Handler(ctx, params.Arguments)

	case "prompts/list":
		return struct {
			Prompts []mcp.Prompt `json:"prompts"`
		}{Prompts: s.dispatch.Prompts()}, nil

	case "prompts/get":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		reg, err := s.dispatch.Lookup(dispatch.ClassPrompt, params.Name)
		if err != nil {
			return nil, err
		}
		return reg.Handler(ctx, params.Arguments)

	case "resources/list":
		return struct {
			Resources []mcp.Resource `json:"resources"`
		}{Resources: s.dispatch.Resources()}, nil

	case "resources/read":
		var params struct {
			URI string `json:"uri"`
		}
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		reg, err := s.dispatch.Lookup(dispatch.ClassResource, params.URI)
		if err != nil {
			return nil, err
		}
		return reg.Handler(ctx, req.Params)

	case "completion/complete":
		var params struct {
			Ref struct {
				Type string `json:"type"`
				Name string `json:"name"`
				URI  string `json:"uri"`
			} `json:"ref"`
			Argument struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"argument"`
		}
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		var class dispatch.Class
		var name string
		switch params.Ref.Type {
		case "ref/prompt":
			class, name = dispatch.ClassPrompt, params.Ref.Name
		case "ref/resource":
			class, name = dispatch.ClassResource, params.Ref.URI
		default:
			return nil, fmt.Errorf("%w: unsupported ref type %q", dispatch.ErrInvalidParams, params.Ref.Type)
		}
		values, err := s.dispatch.Complete(ctx, class, name, params.Argument.Name, params.Argument.Value)
		if err != nil {
			return nil, err
		}
		if len(values) > 100 {
			values = values[:100]
		}
		return mcp.CompleteResult{Completion: mcp.Completion{Values: values}}, nil

	default:
		return nil, fmt.Errorf("%w: %q", dispatch.ErrMethodNotFound, req.Method)
	}
}

// errorResponse converts a handler or routing failure to an error envelope
// carrying the original request id. Recognized protocol errors keep their
// code; anything else becomes a generic internal error with the detail kept
// in the server log, not on the wire.
func (s *Server) errorResponse(ctx context.Context, id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	var perr *jsonrpc.Error
	switch {
	case errors.As(err, &perr):
		return jsonrpc.NewErrorResponse(id, perr.Code, perr.Message, perr.Data)
	case errors.Is(err, dispatch.ErrMethodNotFound):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeMethodNotFound, "method not found", err.Error())
	case errors.Is(err, dispatch.ErrInvalidParams):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, "invalid params", err.Error())
	default:
		s.log.ErrorContext(ctx, "handler failed", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", dispatch.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrInvalidParams, err)
	}
	return nil
}
