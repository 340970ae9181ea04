// Package mcpservice provides a small MCP dispatcher that plugs into the SSE
// transport as its sessions.MessageHandler.
//
// The Server answers initialize (negotiating the protocol version), ping and,
// when configured, logging/setLevel. Application methods are registered with
// WithMethod; handlers can read the connection-time parameters of the
// calling session through sessions.Param.
//
// Quick start:
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithMethod("whoami", func(ctx context.Context, s *sessions.Session, req *jsonrpc.Request) (any, error) {
//	        return map[string]string{"auth": sessions.Param(ctx, "auth", "")}, nil
//	    }),
//	)
//	h, err := ssehttp.New(srv)
package mcpservice
