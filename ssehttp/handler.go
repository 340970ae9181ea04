package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/internal/logctx"
	"github.com/ggoodman/sessionmcp-go/sessions"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	sessionIDParam = "session_id"
	tracerName     = "github.com/ggoodman/sessionmcp-go/ssehttp"

	DefaultSSEPath         = "/sse"
	DefaultMessagePath     = "/messages/"
	DefaultKeepAlive       = 15 * time.Second
	DefaultDeliveryTimeout = 5 * time.Second
	DefaultMaxBodyBytes    = 4 << 20
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections. This is
// transport-level, not JSON-RPC framing.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if ct := w.Header().Get("Content-Type"); ct == "" || ct == jsonMediaType.String() {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger          *slog.Logger
	registry        *sessions.Registry
	queueSize       int
	directory       sessions.Directory
	ssePath         string
	messagePath     string
	keepAlive       time.Duration
	deliveryTimeout time.Duration
	maxBodyBytes    int64
	maxConcurrent   int
	allowedOrigins  []string
	registerer      prometheus.Registerer
	tracerProvider  trace.TracerProvider
}

// WithLogger sets the logger used by the handler. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithRegistry supplies the session registry. By default each Handler owns a
// fresh registry.
func WithRegistry(r *sessions.Registry) Option {
	return func(c *newConfig) { c.registry = r }
}

// WithQueueSize sets the per-session queue capacity of the handler's own
// registry. Ignored when WithRegistry is used.
func WithQueueSize(n int) Option {
	return func(c *newConfig) { c.queueSize = n }
}

// WithDirectory lets the handler accept submissions for sessions whose
// stream is held by another handler sharing the same directory.
func WithDirectory(d sessions.Directory) Option {
	return func(c *newConfig) { c.directory = d }
}

// WithSSEPath sets the path of the streaming endpoint. Defaults to /sse.
func WithSSEPath(p string) Option {
	return func(c *newConfig) { c.ssePath = p }
}

// WithMessagePath sets the path of the submission endpoint. Defaults to
// /messages/. The endpoint event sent to clients points here.
func WithMessagePath(p string) Option {
	return func(c *newConfig) { c.messagePath = p }
}

// WithKeepAlive sets how often an idle stream receives a comment line.
// Zero disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(c *newConfig) { c.keepAlive = d }
}

// WithDeliveryTimeout bounds how long a submission waits for room in a full
// session queue before it is rejected with 503.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(c *newConfig) { c.deliveryTimeout = d }
}

// WithMaxBodyBytes limits submission bodies; larger bodies get 413.
func WithMaxBodyBytes(n int64) Option {
	return func(c *newConfig) { c.maxBodyBytes = n }
}

// WithMaxConcurrentHandlers sets how many messages of one session may be
// handled at once. The default of 1 preserves submission order end to end.
func WithMaxConcurrentHandlers(n int) Option {
	return func(c *newConfig) { c.maxConcurrent = n }
}

// WithAllowedOrigins enables CORS for the listed origins ("*" for any).
func WithAllowedOrigins(origins ...string) Option {
	return func(c *newConfig) { c.allowedOrigins = append(c.allowedOrigins, origins...) }
}

// WithMetricsRegisterer registers the handler's Prometheus collectors with
// reg. Without it the collectors are kept but not registered.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *newConfig) { c.registerer = reg }
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *newConfig) { c.tracerProvider = tp }
}

// Handler implements the SSE transport: GET on the SSE path opens a session
// stream, POST on the message path submits a message to a session.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	handler  sessions.MessageHandler
	registry *sessions.Registry
	dir      sessions.Directory
	metrics  *metrics
	tracer   trace.Tracer
	cors     corsPolicy

	ssePath         string
	messagePath     string
	keepAlive       time.Duration
	deliveryTimeout time.Duration
	maxBodyBytes    int64
	maxConcurrent   int
}

// New constructs a Handler that passes every accepted submission to
// handler.
func New(handler sessions.MessageHandler, opts ...Option) (*Handler, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler is required")
	}

	cfg := &newConfig{
		logger:          slog.Default(),
		ssePath:         DefaultSSEPath,
		messagePath:     DefaultMessagePath,
		keepAlive:       DefaultKeepAlive,
		deliveryTimeout: DefaultDeliveryTimeout,
		maxBodyBytes:    DefaultMaxBodyBytes,
		maxConcurrent:   1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !strings.HasPrefix(cfg.ssePath, "/") || !strings.HasPrefix(cfg.messagePath, "/") {
		return nil, fmt.Errorf("paths must be absolute, got sse=%q messages=%q", cfg.ssePath, cfg.messagePath)
	}
	if strings.TrimSuffix(cfg.ssePath, "/") == strings.TrimSuffix(cfg.messagePath, "/") {
		return nil, fmt.Errorf("sse path and message path must differ, both are %q", cfg.ssePath)
	}
	if cfg.deliveryTimeout <= 0 {
		cfg.deliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.maxBodyBytes <= 0 {
		cfg.maxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.maxConcurrent <= 0 {
		cfg.maxConcurrent = 1
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.registry == nil {
		cfg.registry = sessions.NewRegistry(sessions.WithQueueSize(cfg.queueSize))
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}

	h := &Handler{
		log:             slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		handler:         handler,
		registry:        cfg.registry,
		dir:             cfg.directory,
		metrics:         newMetrics(cfg.registerer),
		tracer:          cfg.tracerProvider.Tracer(tracerName),
		cors:            corsPolicy{origins: cfg.allowedOrigins},
		ssePath:         cfg.ssePath,
		messagePath:     cfg.messagePath,
		keepAlive:       cfg.keepAlive,
		deliveryTimeout: cfg.deliveryTimeout,
		maxBodyBytes:    cfg.maxBodyBytes,
		maxConcurrent:   cfg.maxConcurrent,
	}

	mux := http.NewServeMux()
	for _, p := range withAndWithoutSlash(cfg.ssePath) {
		mux.HandleFunc(fmt.Sprintf("GET %s", p), h.handleSSE)
	}
	for _, p := range withAndWithoutSlash(cfg.messagePath) {
		mux.HandleFunc(fmt.Sprintf("POST %s", p), h.handlePostMessage)
	}
	h.mux = mux
	return h, nil
}

// withAndWithoutSlash returns p plus its trailing-slash twin so neither form
// triggers a ServeMux redirect. A trailing-slash pattern would also match
// the whole subtree, so only the exact form is registered with "{$}".
func withAndWithoutSlash(p string) []string {
	if p == "/" {
		return []string{"/{$}"}
	}
	base := strings.TrimSuffix(p, "/")
	return []string{base, base + "/{$}"}
}

// Registry exposes the handler's session registry.
func (h *Handler) Registry() *sessions.Registry { return h.registry }

// Close ends every open stream. It does not wait for them to drain.
func (h *Handler) Close() {
	h.registry.Close()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cors.apply(w, r) {
		return
	}
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// endpointFor is the data of the endpoint event for session id.
func (h *Handler) endpointFor(id string) string {
	return (&url.URL{Path: h.messagePath}).EscapedPath() + "?" + url.Values{sessionIDParam: {id}}.Encode()
}

// handleSSE accepts a new stream, registers its session and pumps messages
// until the client goes away or the session is closed.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "http.get.not_acceptable")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	sess, err := h.registry.Create(sessions.ExtractMetadata(r.URL.Query()))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, sessions.ErrRegistryClosed) {
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, "failed to create session")
		h.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
		return
	}
	defer h.registry.Remove(sess.ID())

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{Session: sess})
	ctx, span := h.tracer.Start(ctx, "sse.stream",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("session.id", sess.ID()),
			attribute.Int("session.params", sess.Metadata().Len()),
		),
	)
	defer span.End()

	if h.dir != nil {
		if err := h.dir.Claim(ctx, sess.ID()); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "claim failed")
			writeJSONError(w, http.StatusInternalServerError, "failed to register session")
			h.log.ErrorContext(ctx, "session.claim.fail", slog.String("err", err.Error()))
			return
		}
		defer func() {
			if err := h.dir.Release(context.WithoutCancel(ctx), sess.ID()); err != nil {
				h.log.WarnContext(ctx, "session.release.fail", slog.String("err", err.Error()))
			}
		}()
	}

	h.metrics.sessionsTotal.Inc()
	h.metrics.activeSessions.Inc()
	defer h.metrics.activeSessions.Dec()

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	if err := writeSSEEvent(wf, "endpoint", []byte(h.endpointFor(sess.ID()))); err != nil {
		h.log.ErrorContext(ctx, "sse.endpoint.fail", slog.String("err", err.Error()))
		return
	}
	sess.Announce()
	h.log.InfoContext(ctx, "sse.stream.start")

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return h.pumpInbound(gctx, sess) })
	if h.dir != nil {
		g.Go(func() error { return h.receiveForwarded(gctx, sess) })
	}
	sess.Activate()

	// The writer shares gctx so a failing pump ends the stream too.
	wf.ctx = gctx
	err = h.writeOutbound(gctx, wf, sess)

	// Close the session before waiting so blocked deliveries fail fast.
	h.registry.Remove(sess.ID())
	cancel()
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, sessions.ErrSessionClosed):
		h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()), slog.Duration("dur", time.Since(start)))
	}
}

// writeOutbound drains the outbound queue of sess onto the stream in order.
func (h *Handler) writeOutbound(ctx context.Context, wf *lockedWriteFlusher, sess *sessions.Session) error {
	var keepAlive <-chan time.Time
	if h.keepAlive > 0 {
		t := time.NewTicker(h.keepAlive)
		defer t.Stop()
		keepAlive = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Done():
			return sessions.ErrSessionClosed
		case msg := <-sess.Outbound():
			if err := writeSSEEvent(wf, "message", msg); err != nil {
				return err
			}
			h.metrics.outboundEvents.Inc()
			h.log.DebugContext(ctx, "sse.message.deliver")
		case <-keepAlive:
			if err := writeSSEComment(wf, "ping"); err != nil {
				return err
			}
		}
	}
}

// pumpInbound hands queued envelopes to the message handler, at most
// maxConcurrent at a time.
func (h *Handler) pumpInbound(ctx context.Context, sess *sessions.Session) error {
	var hg errgroup.Group
	hg.SetLimit(h.maxConcurrent)
	defer func() { _ = hg.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case env := <-sess.Inbound():
			hg.Go(func() error {
				h.dispatch(ctx, sess, env)
				return nil
			})
		}
	}
}

// dispatch runs the message handler for one envelope. Failures are logged
// and never end the stream.
func (h *Handler) dispatch(ctx context.Context, sess *sessions.Session, env sessions.Envelope) {
	ctx = sessions.WithEnvelope(ctx, env)
	ctx = logctx.WithRPCMessage(ctx, logctx.RPCMessageFrom(&env.Message))
	ctx, span := h.tracer.Start(ctx, "sse.handle_message",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID()),
			attribute.String("rpc.method", env.Message.Method),
			attribute.String("rpc.type", env.Message.Type()),
		),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			h.metrics.handlerErrors.Inc()
			span.SetStatus(codes.Error, "panic")
			h.log.ErrorContext(ctx, "message.handle.panic", slog.Any("panic", rec), slog.String("stack", string(debug.Stack())))
		}
	}()

	start := time.Now()
	if err := h.handler.HandleMessage(ctx, sess, env); err != nil {
		h.metrics.handlerErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		h.log.ErrorContext(ctx, "message.handle.fail", slog.String("err", err.Error()))
		return
	}
	h.log.DebugContext(ctx, "message.handle.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// receiveForwarded delivers payloads other instances forwarded to sess.
func (h *Handler) receiveForwarded(ctx context.Context, sess *sessions.Session) error {
	err := h.dir.Receive(ctx, sess.ID(), func(ctx context.Context, raw jsonrpc.Message) error {
		msg, err := jsonrpc.ParseMessage(raw)
		if err != nil {
			h.log.WarnContext(ctx, "message.forwarded.invalid", slog.String("err", err.Error()))
			return nil
		}
		if err := sess.Deliver(ctx, sessions.NewEnvelope(sess, msg, raw)); err != nil {
			return err
		}
		h.log.DebugContext(ctx, "message.forwarded.deliver")
		return nil
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, sessions.ErrSessionClosed) {
		return nil
	}
	return fmt.Errorf("receive forwarded messages: %w", err)
}

// handlePostMessage accepts one JSON-RPC message for the session named by
// the session_id query parameter.
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "sse.submit", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	reject := func(status int, outcome, msg string) {
		h.metrics.submissions.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("submit.outcome", outcome))
		span.SetStatus(codes.Error, msg)
		writeJSONError(w, status, msg)
	}

	rawID := r.URL.Query().Get(sessionIDParam)
	if rawID == "" {
		reject(http.StatusBadRequest, outcomeBadRequest, "session_id is required")
		h.log.InfoContext(ctx, "session.id.missing")
		return
	}
	id, err := sessions.ParseID(rawID)
	if err != nil {
		reject(http.StatusBadRequest, outcomeBadRequest, "invalid session ID")
		h.log.InfoContext(ctx, "session.id.invalid", slog.String("err", err.Error()))
		return
	}
	span.SetAttributes(attribute.String("session.id", id))

	sess, lookupErr := h.registry.Lookup(id)
	if lookupErr != nil && h.dir == nil {
		reject(http.StatusNotFound, outcomeNotFound, "session not found")
		h.log.InfoContext(ctx, "session.lookup.miss")
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		reject(http.StatusUnsupportedMediaType, outcomeUnsupported, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			reject(http.StatusRequestEntityTooLarge, outcomeTooLarge, "request body too large")
			h.log.WarnContext(ctx, "body.too_large", slog.Int64("limit", tooLarge.Limit))
			return
		}
		reject(http.StatusBadRequest, outcomeBadRequest, "failed to read request body")
		h.log.WarnContext(ctx, "body.read.fail", slog.String("err", err.Error()))
		return
	}

	msg, err := jsonrpc.ParseMessage(body)
	if err != nil {
		text := "invalid JSON-RPC message"
		if errors.Is(err, jsonrpc.ErrBatchUnsupported) {
			text = "JSON-RPC batch arrays are not supported"
		}
		reject(http.StatusBadRequest, outcomeBadRequest, text)
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithRPCMessage(ctx, logctx.RPCMessageFrom(msg))

	if lookupErr != nil {
		h.forward(ctx, w, span, id, body, start)
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{Session: sess})
	dctx, cancel := context.WithTimeout(ctx, h.deliveryTimeout)
	defer cancel()

	deliverStart := time.Now()
	err = sess.Deliver(dctx, sessions.NewEnvelope(sess, msg, jsonrpc.Message(body)))
	h.metrics.deliveryDuration.Observe(time.Since(deliverStart).Seconds())
	switch {
	case err == nil:
	case errors.Is(err, sessions.ErrDeliveryTimeout):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(h.deliveryTimeout)))
		reject(http.StatusServiceUnavailable, outcomeTimeout, "session is busy")
		h.log.WarnContext(ctx, "message.deliver.timeout")
		return
	case errors.Is(err, sessions.ErrSessionClosed):
		reject(http.StatusNotFound, outcomeNotFound, "session not found")
		h.log.InfoContext(ctx, "message.deliver.closed")
		return
	default:
		// The client went away while we waited.
		h.metrics.submissions.WithLabelValues(outcomeError).Inc()
		span.RecordError(err)
		h.log.InfoContext(ctx, "message.deliver.abandoned", slog.String("err", err.Error()))
		return
	}

	h.metrics.submissions.WithLabelValues(outcomeAccepted).Inc()
	writeAccepted(w)
	h.log.InfoContext(ctx, "message.deliver.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// forward hands a submission for a session this instance does not hold to
// the directory.
func (h *Handler) forward(ctx context.Context, w http.ResponseWriter, span trace.Span, id string, body []byte, start time.Time) {
	fctx, cancel := context.WithTimeout(ctx, h.deliveryTimeout)
	defer cancel()

	err := h.dir.Forward(fctx, id, jsonrpc.Message(body))
	switch {
	case err == nil:
		h.metrics.submissions.WithLabelValues(outcomeForwarded).Inc()
		span.SetAttributes(attribute.String("submit.outcome", outcomeForwarded))
		writeAccepted(w)
		h.log.InfoContext(ctx, "message.forward.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	case errors.Is(err, sessions.ErrSessionNotFound):
		h.metrics.submissions.WithLabelValues(outcomeNotFound).Inc()
		span.SetStatus(codes.Error, "session not found")
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.lookup.miss")
	case errors.Is(err, context.DeadlineExceeded):
		h.metrics.submissions.WithLabelValues(outcomeTimeout).Inc()
		span.SetStatus(codes.Error, "session is busy")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(h.deliveryTimeout)))
		writeJSONError(w, http.StatusServiceUnavailable, "session is busy")
		h.log.WarnContext(ctx, "message.forward.timeout")
	default:
		h.metrics.submissions.WithLabelValues(outcomeError).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward failed")
		writeJSONError(w, http.StatusBadGateway, "failed to reach session owner")
		h.log.ErrorContext(ctx, "message.forward.fail", slog.String("err", err.Error()))
	}
}

func writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

func retryAfterSeconds(d time.Duration) int {
	s := int(d.Round(time.Second) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
