package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/mcp"
	"github.com/ggoodman/sessionmcp-go/mcpservice"
	"github.com/ggoodman/sessionmcp-go/sessions"
	"github.com/ggoodman/sessionmcp-go/sessions/redisdir"
	"github.com/ggoodman/sessionmcp-go/ssehttp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SSE server",
		Long: `Start the SSE server.

Settings are read from SESSIONMCP_* environment variables (and REDIS_ADDR
for the multi-instance directory). Flags override the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags.override(cfg, cmd.Flags().Changed)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	flags.register(cmd)

	return cmd
}

// register binds the serve flags to cmd.
func (flags *serveFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&flags.host, "host", "127.0.0.1", "Address to bind")
	f.IntVarP(&flags.port, "port", "p", 8000, "Port to listen on")
	f.StringVar(&flags.allowOrigins, "allow-origins", "", "Comma separated CORS origins (\"*\" for any)")
	f.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&flags.ssePath, "sse-path", ssehttp.DefaultSSEPath, "Path of the SSE stream endpoint")
	f.StringVar(&flags.messagePath, "message-path", ssehttp.DefaultMessagePath, "Path of the message submission endpoint")
	f.DurationVar(&flags.keepAlive, "keepalive", ssehttp.DefaultKeepAlive, "Interval between keep-alive comments (0 disables)")
	f.DurationVar(&flags.deliveryTimeout, "delivery-timeout", ssehttp.DefaultDeliveryTimeout, "How long a submission waits on a full session queue")
	f.IntVar(&flags.queueSize, "queue-size", sessions.DefaultQueueSize, "Per-session queue capacity")
	f.StringVar(&flags.redisAddr, "redis-addr", "", "Redis address for the multi-instance session directory")
}

// run serves until ctx ends, then closes open streams and shuts down.
func run(ctx context.Context, cfg *Config, logOut io.Writer) error {
	lvl, err := cfg.Level()
	if err != nil {
		return err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(lvl)
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: levelVar}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h, closeDir, err := newTransport(cfg, logger, levelVar, reg)
	if err != nil {
		return err
	}
	defer closeDir()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(h, reg, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server.listen", slog.String("addr", srv.Addr), slog.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server.shutdown")

		// Streams never finish on their own; end them before Shutdown waits.
		h.Close()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// newTransport wires the MCP dispatcher into the SSE handler. The returned
// func releases the peer directory, if any.
func newTransport(cfg *Config, logger *slog.Logger, levelVar *slog.LevelVar, reg prometheus.Registerer) (*ssehttp.Handler, func(), error) {
	opts := []ssehttp.Option{
		ssehttp.WithLogger(logger),
		ssehttp.WithSSEPath(cfg.SSEPath),
		ssehttp.WithMessagePath(cfg.MessagePath),
		ssehttp.WithKeepAlive(cfg.KeepAlive),
		ssehttp.WithDeliveryTimeout(cfg.DeliveryTimeout),
		ssehttp.WithQueueSize(cfg.QueueSize),
		ssehttp.WithMetricsRegisterer(reg),
	}
	if origins := cfg.Origins(); len(origins) > 0 {
		opts = append(opts, ssehttp.WithAllowedOrigins(origins...))
	}

	closeDir := func() {}
	if cfg.RedisAddr != "" {
		dir, err := redisdir.New(redisdir.Config{RedisAddr: cfg.RedisAddr, KeyPrefix: cfg.KeyPrefix})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("directory.redis", slog.String("addr", cfg.RedisAddr))
		opts = append(opts, ssehttp.WithDirectory(dir))
		closeDir = func() { _ = dir.Close() }
	}

	h, err := ssehttp.New(newMCPServer(logger, levelVar), opts...)
	if err != nil {
		closeDir()
		return nil, nil, err
	}
	return h, closeDir, nil
}

// newMCPServer is the dispatcher served by the binary. Besides the built-in
// methods it answers session/params with the caller's connection parameters.
func newMCPServer(logger *slog.Logger, levelVar *slog.LevelVar) *mcpservice.Server {
	return mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "sessionmcp", Version: version}),
		mcpservice.WithLogger(logger),
		mcpservice.WithLogLevelVar(levelVar),
		mcpservice.WithMethod("session/params", func(ctx context.Context, s *sessions.Session, req *jsonrpc.Request) (any, error) {
			return map[string]any{"sessionId": s.ID(), "params": s.Metadata()}, nil
		}),
	)
}

func newRouter(h http.Handler, gatherer prometheus.Gatherer, cfg *Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	for _, p := range transportPaths(cfg.SSEPath, cfg.MessagePath) {
		r.Handle(p, h)
	}
	return r
}

// transportPaths lists every route the transport answers on: each path
// with and without its trailing slash.
func transportPaths(paths ...string) []string {
	var out []string
	for _, p := range paths {
		base := strings.TrimSuffix(p, "/")
		if base == "" {
			out = append(out, "/")
			continue
		}
		out = append(out, base, base+"/")
	}
	return out
}
