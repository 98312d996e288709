package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcputil/go-mcp-sse/mcp"
)

// ToolOption configures NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool // default false (strict)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown argument fields
// are allowed. When false (default), decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool builds a tool registration from a typed argument struct A. The
// input schema is reflected from A immediately; a non-object A poisons the
// registration so Registry.RegisterTool fails at startup. The handler's
// return value is marshaled verbatim as the tools/call result.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (any, error), opts ...ToolOption) Registration {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	schema, err := reflectInputSchema[A](cfg.allowAdditionalProperties)
	if err != nil {
		return Registration{Class: ClassTool, Name: name, err: err}
	}

	handler := func(ctx context.Context, args json.RawMessage) (any, error) {
		a, err := decodeArgs[A](args, cfg.allowAdditionalProperties)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}

	return Registration{
		Class:   ClassTool,
		Name:    name,
		Handler: handler,
		Tool: &mcp.Tool{
			Name:        name,
			Description: cfg.description,
			InputSchema: schema,
		},
	}
}

// PromptOption configures NewPrompt.
type PromptOption func(*promptConfig)

type promptConfig struct {
	description string
	completions map[string]CompleteFunc
}

// WithPromptDescription sets the prompt description used in listings.
func WithPromptDescription(desc string) PromptOption {
	return func(c *promptConfig) { c.description = desc }
}

// WithCompletion attaches a completion callback for one prompt argument,
// served via completion/complete.
func WithCompletion(arg string, fn CompleteFunc) PromptOption {
	return func(c *promptConfig) {
		if c.completions == nil {
			c.completions = make(map[string]CompleteFunc)
		}
		c.completions[arg] = fn
	}
}

// NewPrompt builds a prompt registration from a typed argument struct A.
// Prompt arguments are derived from A's fields for discovery listings.
func NewPrompt[A any](name string, fn func(ctx context.Context, args A) (*mcp.GetPromptResult, error), opts ...PromptOption) Registration {
	cfg := promptConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	args, err := reflectPromptArguments[A]()
	if err != nil {
		return Registration{Class: ClassPrompt, Name: name, err: err}
	}

	handler := func(ctx context.Context, raw json.RawMessage) (any, error) {
		a, err := decodeArgs[A](raw, true)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}

	return Registration{
		Class:   ClassPrompt,
		Name:    name,
		Handler: handler,
		Prompt: &mcp.Prompt{
			Name:        name,
			Description: cfg.description,
			Arguments:   args,
		},
		completions: cfg.completions,
	}
}

// ResourceOption configures NewResource.
type ResourceOption func(*resourceConfig)

type resourceConfig struct {
	description string
	mimeType    string
}

// WithResourceDescription sets the resource description used in listings.
func WithResourceDescription(desc string) ResourceOption {
	return func(c *resourceConfig) { c.description = desc }
}

// WithMimeType sets the resource MIME type advertised in listings.
func WithMimeType(mimeType string) ResourceOption {
	return func(c *resourceConfig) { c.mimeType = mimeType }
}

// NewResource builds a resource registration keyed by uri. The handler takes
// no arguments; resources are addressed solely by their URI.
func NewResource(uri, name string, fn func(ctx context.Context) (any, error), opts ...ResourceOption) Registration {
	cfg := resourceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	handler := func(ctx context.Context, _ json.RawMessage) (any, error) {
		return fn(ctx)
	}

	return Registration{
		Class:   ClassResource,
		Name:    uri,
		Handler: handler,
		Resource: &mcp.Resource{
			URI:         uri,
			Name:        name,
			Description: cfg.description,
			MimeType:    cfg.mimeType,
		},
	}
}

// decodeArgs unmarshals raw params into A, wrapping failures in
// ErrInvalidParams.
func decodeArgs[A any](raw json.RawMessage, allowAdditional bool) (A, error) {
	var a A
	if len(raw) == 0 {
		return a, nil
	}
	if allowAdditional {
		if err := json.Unmarshal(raw, &a); err != nil {
			return a, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return a, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return a, nil
}
