// Package mcp provides a Model Context Protocol (MCP) server for mcpguard using mcp-go.
//
// The server lets an AI assistant, or any MCP client, drive the drift review
// cycle itself. Every tool call goes through the guard engine, so the
// single-operation gate and the Change Set revalidation apply exactly as they
// do on the command line.
//
// # Tools
//
//   - check_changes: runs one detection pass and returns the Change Set as
//     JSON. An empty "changes" list means the configuration is clean.
//   - revert_changes: restores the entries passed in "changes" to their
//     baselines. Pass back the id and created_at of the checked set so stale
//     sets can be rejected.
//   - accept_changes: makes the entries passed in "changes" the new baseline.
//     Without "changes" it detects and accepts the full current set.
//   - status: describes the guarded configuration and the engine state.
//
// Failures are returned as tool errors whose text names every failing path.
//
// # Implementation
//
// The package uses the mcp-go library (github.com/mark3labs/mcp-go) and
// communicates over stdin/stdout using JSON-RPC 2.0:
//
//	mcpguard mcp
//
// # References
//
// - MCP Specification: https://modelcontextprotocol.io/specification
// - mcp-go Library: https://github.com/mark3labs/mcp-go
package mcp
