package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequestValid(t *testing.T) {
	req, derr := DecodeRequest([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`))
	if derr != nil {
		t.Fatalf("decode failed: %v", derr)
	}
	if req.Method != "tools/call" {
		t.Fatalf("expected method tools/call, got %s", req.Method)
	}
	if req.IsNotification() {
		t.Fatal("request with id reported as notification")
	}
	if got := req.ID.String(); got != "1" {
		t.Fatalf("expected id 1, got %q", got)
	}
}

func TestDecodeRequestNotification(t *testing.T) {
	req, derr := DecodeRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if derr != nil {
		t.Fatalf("decode failed: %v", derr)
	}
	if !req.IsNotification() {
		t.Fatal("expected notification")
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"malformed json", `{"jsonrpc":`, ErrorCodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, ErrorCodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, ErrorCodeInvalidRequest},
		{"response shape", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, ErrorCodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, derr := DecodeRequest([]byte(tc.body))
			if derr == nil {
				t.Fatal("expected decode error")
			}
			if derr.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, derr.Code)
			}
		})
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	for _, raw := range []string{`42`, `"abc"`, `1.5`} {
		var id RequestID
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		out, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal %s: %v", raw, err)
		}
		if string(out) != raw {
			t.Fatalf("expected %s to round-trip, got %s", raw, out)
		}
	}
}

func TestResultResponseEncoding(t *testing.T) {
	resp, err := NewResultResponse(NewRequestID(1), "sunny")
	if err != nil {
		t.Fatalf("build response: %v", err)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","result":"sunny","id":1}`
	if string(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
}

func TestErrorResponseNullID(t *testing.T) {
	resp := NewErrorResponse(nil, ErrorCodeParseError, "parse error", nil)
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32700,"message":"parse error"},"id":null}`
	if string(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
}
