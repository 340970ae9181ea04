package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds the server settings. Values come from the environment and
// may be overridden by serve flags.
type Config struct {
	BindHost        string        `env:"SESSIONMCP_BIND_HOST,default=127.0.0.1"`
	Port            int           `env:"SESSIONMCP_PORT,default=8000"`
	AllowOrigins    string        `env:"SESSIONMCP_ALLOW_ORIGINS"`
	LogLevel        string        `env:"SESSIONMCP_LOG_LEVEL,default=info"`
	SSEPath         string        `env:"SESSIONMCP_SSE_PATH,default=/sse"`
	MessagePath     string        `env:"SESSIONMCP_MESSAGE_PATH,default=/messages/"`
	KeepAlive       time.Duration `env:"SESSIONMCP_KEEPALIVE,default=15s"`
	DeliveryTimeout time.Duration `env:"SESSIONMCP_DELIVERY_TIMEOUT,default=5s"`
	QueueSize       int           `env:"SESSIONMCP_QUEUE_SIZE,default=64"`

	// RedisAddr enables the Redis peer directory when set.
	RedisAddr string `env:"REDIS_ADDR"`
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=sessionmcp:dir:"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindHost, c.Port)
}

// Origins splits AllowOrigins on commas, dropping blanks.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Level parses LogLevel, accepting slog level names in any case.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive, got %s", c.DeliveryTimeout)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("keep-alive must not be negative, got %s", c.KeepAlive)
	}
	return nil
}

// serveFlags mirrors the Config fields that can be set on the command line.
type serveFlags struct {
	host            string
	port            int
	allowOrigins    string
	logLevel        string
	ssePath         string
	messagePath     string
	keepAlive       time.Duration
	deliveryTimeout time.Duration
	queueSize       int
	redisAddr       string
}

// override copies every flag the user set onto cfg.
func (flags *serveFlags) override(cfg *Config, changed func(name string) bool) {
	if changed("host") {
		cfg.BindHost = flags.host
	}
	if changed("port") {
		cfg.Port = flags.port
	}
	if changed("allow-origins") {
		cfg.AllowOrigins = flags.allowOrigins
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("sse-path") {
		cfg.SSEPath = flags.ssePath
	}
	if changed("message-path") {
		cfg.MessagePath = flags.messagePath
	}
	if changed("keepalive") {
		cfg.KeepAlive = flags.keepAlive
	}
	if changed("delivery-timeout") {
		cfg.DeliveryTimeout = flags.deliveryTimeout
	}
	if changed("queue-size") {
		cfg.QueueSize = flags.queueSize
	}
	if changed("redis-addr") {
		cfg.RedisAddr = flags.redisAddr
	}
}
