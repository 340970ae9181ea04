package logctx

import (
	"context"
	"log/slog"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/sessions"
)

// Handler decorates records with the request, session and RPC data found in
// the logging context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok && sd.Session != nil {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.Session.ID()),
			slog.String("state", sd.Session.State().String()),
			slog.Int("params", sd.Session.Metadata().Len()),
		))
	}

	if msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type rpcMsg struct{}

type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

// RPCMessageFrom summarises a decoded JSON-RPC message for logging.
func RPCMessageFrom(msg *jsonrpc.AnyMessage) *RPCMessage {
	return &RPCMessage{Method: msg.Method, ID: msg.ID.String(), Type: msg.Type()}
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsg{}, msg)
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type sessionDataKey struct{}

// SessionData ties log records to a live session. State is read when the
// record is emitted.
type SessionData struct {
	Session *sessions.Session
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}
