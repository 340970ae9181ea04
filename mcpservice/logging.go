package mcpservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/mcp"
	"github.com/ggoodman/sessionmcp-go/sessions"
)

// ErrInvalidLoggingLevel indicates the provided level is not one of the
// protocol-defined LoggingLevel values.
var ErrInvalidLoggingLevel = errors.New("invalid logging level")

// SlogLevel maps an MCP logging level onto the nearest slog level.
func SlogLevel(level mcp.LoggingLevel) (slog.Level, error) {
	switch level {
	case mcp.LoggingLevelDebug:
		return slog.LevelDebug, nil
	case mcp.LoggingLevelInfo, mcp.LoggingLevelNotice:
		// Map notice to info
		return slog.LevelInfo, nil
	case mcp.LoggingLevelWarning:
		return slog.LevelWarn, nil
	case mcp.LoggingLevelError, mcp.LoggingLevelCritical, mcp.LoggingLevelAlert, mcp.LoggingLevelEmergency:
		// Map error and above to error
		return slog.LevelError, nil
	default:
		return 0, ErrInvalidLoggingLevel
	}
}

func (s *Server) setLevel(ctx context.Context, _ *sessions.Session, req *jsonrpc.Request) (any, error) {
	params, err := DecodeParams[mcp.SetLevelRequest](req)
	if err != nil {
		return nil, err
	}
	lvl, err := SlogLevel(params.Level)
	if err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "invalid params"}
	}
	s.levelVar.Set(lvl)
	return &mcp.EmptyResult{}, nil
}
