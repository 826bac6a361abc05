// Package mcp provides a Model Context Protocol server for inspecting a
// running duelhall server.
//
// The mcp package implements:
//   - MCP tool definitions over the REST inspection API
//   - Plain-text formatting of sessions and lobby counters
//
// MCP Tools:
//   - list_sessions: List live sessions
//   - get_session: Get one session by id
//   - lobby_stats: Player and session counters
//   - list_engines: Rules engines compiled into the server
//
// The tools are read-only. Playing happens over the WebSocket transport,
// where each connection is a player.
//
// Transport Modes:
//   - Stdio: Direct stdio communication for local MCP clients
//   - HTTP: POST /mcp on the main server
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
