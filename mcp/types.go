package mcp

// ProtocolVersion is the MCP revision implemented by this module. It is the
// last revision that specifies the HTTP+SSE transport with a dedicated
// endpoint-announcement event.
const ProtocolVersion = "2024-11-05"

// ImplementationInfo names a server or client implementation.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises the optional protocol surfaces a server
// supports. Fields are pointers so absent capabilities are omitted entirely.
type ServerCapabilities struct {
	Prompts *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"prompts,omitempty"`
	Resources *struct {
		ListChanged bool `json:"listChanged"`
		Subscribe   bool `json:"subscribe"`
	} `json:"resources,omitempty"`
	Tools *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools,omitempty"`
	Completions *struct{} `json:"completions,omitempty"`
}

// InitializeResult is the response payload of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Role identifies the author of a prompt message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TextContent is a plain-text content block.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTextContent builds a TextContent block with the type field populated.
func NewTextContent(text string) TextContent {
	return TextContent{Type: "text", Text: text}
}

// Message pairs a role with a content block inside a prompt result.
type Message struct {
	Role    Role        `json:"role"`
	Content TextContent `json:"content"`
}

// Tool describes a callable tool in discovery listings.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is a JSON-schema-like description of a handler's input shape.
type InputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// SchemaProperty is a simplified schema node.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
}

// CallToolResult is the structured response payload of tools/call for
// handlers that want to return content blocks rather than a bare value.
type CallToolResult struct {
	Content []TextContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Prompt describes a registered prompt in discovery listings.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes a single prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// GetPromptResult is the response payload of prompts/get.
type GetPromptResult struct {
	Description string    `json:"description,omitempty"`
	Messages    []Message `json:"messages"`
}

// Resource describes an addressable resource in discovery listings.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContents is a single readable representation of a resource.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceResult is the response payload of resources/read.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// CompletionValues is the list of suggestions returned by a completion
// callback. The dispatcher truncates it to at most 100 entries on the wire.
type CompletionValues []string

// Completion is the wire shape of a completion/complete result.
type Completion struct {
	Values  CompletionValues `json:"values"`
	Total   int              `json:"total,omitempty"`
	HasMore bool             `json:"hasMore,omitempty"`
}

// CompleteResult wraps a Completion for the completion/complete response.
type CompleteResult struct {
	Completion Completion `json:"completion"`
}
