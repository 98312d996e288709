package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mcputil/go-mcp-sse/mcp"
)

type weatherArgs struct {
	City string `json:"city"`
}

func sunnyTool() Registration {
	return NewTool("get_weather", func(ctx context.Context, args weatherArgs) (any, error) {
		return "sunny", nil
	}, WithToolDescription("Current weather for a city"))
}

func TestRegisterAndLookupTool(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterTool(sunnyTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	reg, err := r.Lookup(ClassTool, "get_weather")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	out, err := reg.Handler(context.Background(), json.RawMessage(`{"city":"nyc"}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "sunny" {
		t.Fatalf("expected sunny, got %v", out)
	}
}

func TestLookupUnknownMethod(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(ClassTool, "nope"); !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
}

func TestLastRegistrationWins(t *testing.T) {
	r := NewRegistry()

	type noArgs struct{}
	first := NewTool("ping", func(ctx context.Context, _ noArgs) (any, error) {
		return "first", nil
	})
	second := NewTool("ping", func(ctx context.Context, _ noArgs) (any, error) {
		return "second", nil
	})

	if err := r.RegisterTool(first); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if err := r.RegisterTool(second); err != nil {
		t.Fatalf("register second: %v", err)
	}

	reg, err := r.Lookup(ClassTool, "ping")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	out, err := reg.Handler(context.Background(), nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "second" {
		t.Fatalf("expected last registration to win, got %v", out)
	}
	if n := len(r.Tools()); n != 1 {
		t.Fatalf("expected a single listing entry, got %d", n)
	}
}

func TestToolInputSchemaReflected(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterTool(sunnyTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	tools := r.Tools()
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	schema := tools[0].InputSchema
	if schema.Type != "object" {
		t.Fatalf("expected object schema, got %q", schema.Type)
	}
	prop, ok := schema.Properties["city"]
	if !ok {
		t.Fatalf("expected city property, have %v", schema.Properties)
	}
	if prop.Type != "string" {
		t.Fatalf("expected string city, got %q", prop.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "city" {
		t.Fatalf("expected city required, got %v", schema.Required)
	}
}

func TestMalformedRegistrationFailsAtStartup(t *testing.T) {
	r := NewRegistry()

	bad := NewTool("bad", func(ctx context.Context, n int) (any, error) {
		return n, nil
	})
	if err := r.RegisterTool(bad); err == nil {
		t.Fatal("expected non-object input type to be rejected at registration")
	}

	type noArgs struct{}
	unnamed := NewTool("", func(ctx context.Context, _ noArgs) (any, error) { return nil, nil })
	if err := r.RegisterTool(unnamed); err == nil {
		t.Fatal("expected empty name to be rejected at registration")
	}

	if err := r.RegisterPrompt(sunnyTool()); err == nil {
		t.Fatal("expected class mismatch to be rejected at registration")
	}
}

func TestInvalidArgumentsWrapped(t *testing.T) {
	reg := sunnyTool()
	_, err := reg.Handler(context.Background(), json.RawMessage(`{"city":1}`))
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}

	_, err = reg.Handler(context.Background(), json.RawMessage(`{"city":"nyc","bogus":true}`))
	if !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected unknown fields to be rejected, got %v", err)
	}
}

func TestListingsPreserveRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	type noArgs struct{}
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg := NewTool(name, func(ctx context.Context, _ noArgs) (any, error) { return nil, nil })
		if err := r.RegisterTool(reg); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	tools := r.Tools()
	want := []string{"zeta", "alpha", "mid"}
	for i, tool := range tools {
		if tool.Name != want[i] {
			t.Fatalf("expected %v, got %v at %d", want, tools, i)
		}
	}
}

func TestPromptArgumentsAndCompletion(t *testing.T) {
	r := NewRegistry()

	cities := []string{"New York", "London", "Tokyo"}
	prompt := NewPrompt("get_weather_prompt", func(ctx context.Context, args weatherArgs) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "Weather prompt",
			Messages: []mcp.Message{
				{Role: mcp.RoleUser, Content: mcp.NewTextContent("What is the weather like in " + args.City + "?")},
			},
		}, nil
	}, WithCompletion("city", func(ctx context.Context, value string) (mcp.CompletionValues, error) {
		var out mcp.CompletionValues
		for _, c := range cities {
			if len(value) <= len(c) && c[:len(value)] == value {
				out = append(out, c)
			}
		}
		return out, nil
	}))

	if err := r.RegisterPrompt(prompt); err != nil {
		t.Fatalf("register: %v", err)
	}

	prompts := r.Prompts()
	if len(prompts) != 1 || len(prompts[0].Arguments) != 1 || prompts[0].Arguments[0].Name != "city" {
		t.Fatalf("expected city argument in listing, got %+v", prompts)
	}

	values, err := r.Complete(context.Background(), ClassPrompt, "get_weather_prompt", "city", "T")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(values) != 1 || values[0] != "Tokyo" {
		t.Fatalf("expected [Tokyo], got %v", values)
	}

	// No callback registered for this argument: empty suggestions.
	values, err = r.Complete(context.Background(), ClassPrompt, "get_weather_prompt", "country", "J")
	if err != nil {
		t.Fatalf("complete without callback: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("expected no suggestions, got %v", values)
	}

	if _, err := r.Complete(context.Background(), ClassPrompt, "missing", "city", "x"); !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
}

func TestResourceRegistration(t *testing.T) {
	r := NewRegistry()
	res := NewResource("file:///etc/motd", "motd", func(ctx context.Context) (any, error) {
		return &mcp.ReadResourceResult{
			Contents: []mcp.ResourceContents{{URI: "file:///etc/motd", MimeType: "text/plain", Text: "hello"}},
		}, nil
	}, WithMimeType("text/plain"))

	if err := r.RegisterResource(res); err != nil {
		t.Fatalf("register: %v", err)
	}

	listed := r.Resources()
	if len(listed) != 1 || listed[0].URI != "file:///etc/motd" {
		t.Fatalf("expected resource listing, got %+v", listed)
	}

	reg, err := r.Lookup(ClassResource, "file:///etc/motd")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	out, err := reg.Handler(context.Background(), nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if _, ok := out.(*mcp.ReadResourceResult); !ok {
		t.Fatalf("expected ReadResourceResult, got %T", out)
	}
}
