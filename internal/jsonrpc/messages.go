// Package jsonrpc implements the JSON-RPC 2.0 envelope used by the MCP wire
// protocol: requests and notifications inbound, responses and notifications
// outbound. It carries params and results as raw JSON so callers control
// (de)serialization of the protocol payloads.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the JSON-RPC protocol version spoken on the wire.
const ProtocolVersion = "2.0"

// Request is an inbound JSON-RPC request or, when ID is absent, a notification.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return r.ID.IsNil()
}

// Response is an outbound JSON-RPC response. Exactly one of Result and Error
// is set. ID is always serialized; a null ID correlates errors for requests
// whose ID could not be decoded.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

// Notification is an outbound server-initiated message without an ID.
type Notification struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
}

// NewResultResponse builds a success response, marshaling result as-is.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Result:         resultBytes,
		ID:             id,
	}, nil
}

// NewErrorResponse builds an error response with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// NewNotification builds a server-initiated notification envelope.
func NewNotification(method string, params any) (*Notification, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}
	return &Notification{
		JSONRPCVersion: ProtocolVersion,
		Method:         method,
		Params:         raw,
	}, nil
}

// DecodeRequest parses and validates an inbound request envelope. A failure
// is reported as an *Error carrying the JSON-RPC code the caller should echo
// back: ErrorCodeParseError for malformed JSON, ErrorCodeInvalidRequest for
// structurally invalid envelopes.
func DecodeRequest(data []byte) (*Request, *Error) {
	var raw struct {
		JSONRPCVersion string          `json:"jsonrpc"`
		Method         string          `json:"method"`
		Params         json.RawMessage `json:"params"`
		Result         json.RawMessage `json:"result"`
		Error          json.RawMessage `json:"error"`
		ID             *RequestID      `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Code: ErrorCodeParseError, Message: "parse error", Data: err.Error()}
	}
	if raw.JSONRPCVersion != ProtocolVersion {
		return nil, &Error{Code: ErrorCodeInvalidRequest, Message: fmt.Sprintf("unsupported jsonrpc version %q", raw.JSONRPCVersion)}
	}
	if raw.Method == "" {
		return nil, &Error{Code: ErrorCodeInvalidRequest, Message: "missing method"}
	}
	if len(raw.Result) > 0 || len(raw.Error) > 0 {
		return nil, &Error{Code: ErrorCodeInvalidRequest, Message: "request cannot carry result or error"}
	}
	return &Request{
		JSONRPCVersion: raw.JSONRPCVersion,
		Method:         raw.Method,
		Params:         raw.Params,
		ID:             raw.ID,
	}, nil
}
