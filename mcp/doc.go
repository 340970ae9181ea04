// Package mcp contains the Model Context Protocol data types the SSE
// transport's reference dispatcher needs: method names, the initialize
// handshake, ping and the general notifications.
//
// The package is free of transport logic. ssehttp moves raw JSON-RPC
// payloads; mcpservice decodes them into these types and encodes replies.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. PingMethod).
//
// # Compatibility
//
// LatestProtocolVersion is the newest protocol revision understood here.
// NegotiateProtocolVersion echoes a client's requested revision when it is
// supported and falls back to LatestProtocolVersion otherwise.
package mcp
