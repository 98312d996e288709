// Package mcp defines the Model Context Protocol value types exchanged
// between clients and registered handlers: tool, prompt, and resource
// descriptors for discovery listings, and the result payloads handlers
// return from invocations.
//
// The types mirror the MCP schema for the 2024-11-05 revision, which is the
// revision that defines the HTTP+SSE transport implemented by this module.
package mcp
