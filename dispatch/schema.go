package dispatch

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/mcputil/go-mcp-sse/mcp"
)

// reflectInputSchema reflects a Go struct type A into the simplified MCP
// input-schema shape. Non-object types are rejected so a bad handler
// signature surfaces at registration, not at first call.
func reflectInputSchema[A any](allowAdditional bool) (mcp.InputSchema, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return mcp.InputSchema{}, fmt.Errorf("input type %T is not an object shape", *new(A))
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.InputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}, nil
}

// reflectPromptArguments derives prompt argument descriptors from the fields
// of A, preserving field declaration order.
func reflectPromptArguments[A any]() ([]mcp.PromptArgument, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return nil, fmt.Errorf("argument type %T is not an object shape", *new(A))
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	var args []mcp.PromptArgument
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			args = append(args, mcp.PromptArgument{
				Name:        el.Key,
				Description: el.Value.Description,
				Required:    required[el.Key],
			})
		}
	}
	return args, nil
}

// toSchemaProperty recursively maps a jsonschema node to the simplified MCP
// property shape.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}
