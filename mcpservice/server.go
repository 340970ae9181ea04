package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/mcp"
	"github.com/ggoodman/sessionmcp-go/sessions"
)

// RequestHandlerFunc answers one JSON-RPC request. The returned value is
// marshalled as the result. Returning a *jsonrpc.Error sends that error to
// the client verbatim; any other error becomes an internal error.
type RequestHandlerFunc func(ctx context.Context, s *sessions.Session, req *jsonrpc.Request) (any, error)

// NotificationHandlerFunc consumes one JSON-RPC notification.
type NotificationHandlerFunc func(ctx context.Context, s *sessions.Session, note *jsonrpc.Request) error

// ResponseHandlerFunc consumes a client's response to a server-initiated
// request.
type ResponseHandlerFunc func(ctx context.Context, s *sessions.Session, res *jsonrpc.Response) error

// ServerOption configures a Server.
type ServerOption func(*Server)

// Server is a minimal MCP dispatcher usable as the sessions.MessageHandler
// of the SSE transport. It answers initialize and ping itself and routes
// everything else to registered handlers.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string
	methods      map[string]RequestHandlerFunc
	notes        map[string]NotificationHandlerFunc
	onResponse   ResponseHandlerFunc
	levelVar     *slog.LevelVar
	log          *slog.Logger
}

// NewServer builds a Server using functional options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		info:    mcp.ImplementationInfo{Name: "sessionmcp", Version: "dev"},
		methods: make(map[string]RequestHandlerFunc),
		notes:   make(map[string]NotificationHandlerFunc),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// WithMethod registers fn for requests named method. Registering initialize
// or ping overrides the built-in behaviour.
func WithMethod(method string, fn RequestHandlerFunc) ServerOption {
	return func(s *Server) { s.methods[method] = fn }
}

// WithNotification registers fn for notifications named method.
func WithNotification(method string, fn NotificationHandlerFunc) ServerOption {
	return func(s *Server) { s.notes[method] = fn }
}

// WithResponseHandler receives responses the client sends back.
func WithResponseHandler(fn ResponseHandlerFunc) ServerOption {
	return func(s *Server) { s.onResponse = fn }
}

// WithLogLevelVar advertises the logging capability and maps
// logging/setLevel requests onto lv.
func WithLogLevelVar(lv *slog.LevelVar) ServerOption {
	return func(s *Server) { s.levelVar = lv }
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// HandleMessage implements sessions.MessageHandler.
func (s *Server) HandleMessage(ctx context.Context, sess *sessions.Session, env sessions.Envelope) error {
	msg := &env.Message
	switch msg.Type() {
	case "request":
		return s.handleRequest(ctx, sess, msg.AsRequest())
	case "notification":
		return s.handleNotification(ctx, sess, msg.AsRequest())
	default:
		if s.onResponse == nil {
			s.log.DebugContext(ctx, "mcpservice.response.ignored")
			return nil
		}
		return s.onResponse(ctx, sess, msg.AsResponse())
	}
}

func (s *Server) handleRequest(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) error {
	start := time.Now()
	log := s.log.With(slog.String("method", req.Method))

	fn, ok := s.methods[req.Method]
	if !ok {
		switch mcp.Method(req.Method) {
		case mcp.InitializeMethod:
			fn = s.initialize
		case mcp.PingMethod:
			fn = ping
		case mcp.LoggingSetLevelMethod:
			if s.levelVar != nil {
				fn = s.setLevel
			}
		}
	}

	var res *jsonrpc.Response
	if fn == nil {
		log.InfoContext(ctx, "mcpservice.handle_request.unsupported")
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil)
	} else {
		result, err := fn(withRequestProgress(ctx, sess, req), sess, req)
		var rpcErr *jsonrpc.Error
		switch {
		case errors.As(err, &rpcErr):
			log.InfoContext(ctx, "mcpservice.handle_request.rejected", slog.Int("code", int(rpcErr.Code)), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			res = &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: rpcErr, ID: req.ID}
		case err != nil:
			log.ErrorContext(ctx, "mcpservice.handle_request.fail", slog.String("err", err.Error()))
			res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		default:
			if result == nil {
				result = &mcp.EmptyResult{}
			}
			res, err = jsonrpc.NewResultResponse(req.ID, result)
			if err != nil {
				log.ErrorContext(ctx, "mcpservice.handle_request.fail", slog.String("err", err.Error()))
				res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
			}
		}
	}

	out, err := jsonrpc.Encode(res)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := sess.Send(ctx, out); err != nil {
		return fmt.Errorf("send response: %w", err)
	}
	log.DebugContext(ctx, "mcpservice.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return nil
}

func (s *Server) handleNotification(ctx context.Context, sess *sessions.Session, note *jsonrpc.Request) error {
	if fn, ok := s.notes[note.Method]; ok {
		return fn(ctx, sess, note)
	}
	switch mcp.Method(note.Method) {
	case mcp.InitializedNotificationMethod:
		s.log.InfoContext(ctx, "mcpservice.session.initialized")
	default:
		s.log.DebugContext(ctx, "mcpservice.notification.ignored", slog.String("method", note.Method))
	}
	return nil
}

func (s *Server) initialize(ctx context.Context, _ *sessions.Session, req *jsonrpc.Request) (any, error) {
	params, err := DecodeParams[mcp.InitializeRequest](req)
	if err != nil {
		return nil, err
	}
	res := &mcp.InitializeResult{
		ProtocolVersion: mcp.NegotiateProtocolVersion(params.ProtocolVersion),
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}
	if s.levelVar != nil {
		res.Capabilities.Logging = &struct{}{}
	}
	return res, nil
}

func ping(context.Context, *sessions.Session, *jsonrpc.Request) (any, error) {
	return &mcp.EmptyResult{}, nil
}

// DecodeParams unmarshals req.Params into a T. Malformed params produce a
// JSON-RPC invalid params error.
func DecodeParams[T any](req *jsonrpc.Request) (T, error) {
	var v T
	if len(req.Params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(req.Params, &v); err != nil {
		return v, &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "invalid params"}
	}
	return v, nil
}

// Notify sends a notification to the client of sess.
func Notify(ctx context.Context, sess *sessions.Session, method mcp.Method, params any) error {
	note, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		return err
	}
	msg, err := jsonrpc.Encode(note)
	if err != nil {
		return err
	}
	return sess.Send(ctx, msg)
}

var _ sessions.MessageHandler = (*Server)(nil)
