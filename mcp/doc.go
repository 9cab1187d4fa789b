// Package mcp contains the Model Context Protocol data types and method
// names the gateway speaks. It mirrors the wire representation (exported
// structs with json tags, string constants for method names) and carries no
// transport logic; both the HTTP and stdio transports marshal these types.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod).
//
// # Protocol Versions
//
// NegotiateProtocolVersion echoes a client's requested version when it is
// one of SupportedProtocolVersions and otherwise falls back to
// DefaultProtocolVersion.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
