package main

import (
	"log/slog"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SESSIONMCP_BIND_HOST", "SESSIONMCP_PORT", "SESSIONMCP_ALLOW_ORIGINS",
		"SESSIONMCP_LOG_LEVEL", "SESSIONMCP_SSE_PATH", "SESSIONMCP_MESSAGE_PATH",
		"SESSIONMCP_KEEPALIVE", "SESSIONMCP_DELIVERY_TIMEOUT", "SESSIONMCP_QUEUE_SIZE",
		"REDIS_ADDR", "SESSIONS_KEY_PREFIX",
	} {
		// Setenv restores the original value on cleanup.
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		clearEnv(t)
		cfg, err := loadConfig()
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if got, want := cfg.Addr(), "127.0.0.1:8000"; got != want {
			t.Fatalf("addr: want %s, got %s", want, got)
		}
		if cfg.SSEPath != "/sse" || cfg.MessagePath != "/messages/" {
			t.Fatalf("paths: got %q %q", cfg.SSEPath, cfg.MessagePath)
		}
		if cfg.KeepAlive != 15*time.Second || cfg.DeliveryTimeout != 5*time.Second || cfg.QueueSize != 64 {
			t.Fatalf("transport defaults: got %+v", cfg)
		}
		if cfg.RedisAddr != "" {
			t.Fatalf("redis should be off by default, got %q", cfg.RedisAddr)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("default config invalid: %v", err)
		}
	})

	t.Run("Environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SESSIONMCP_BIND_HOST", "0.0.0.0")
		t.Setenv("SESSIONMCP_PORT", "9090")
		t.Setenv("SESSIONMCP_ALLOW_ORIGINS", "https://a.example, https://b.example,")
		t.Setenv("SESSIONMCP_LOG_LEVEL", "DEBUG")
		t.Setenv("SESSIONMCP_KEEPALIVE", "1m")

		cfg, err := loadConfig()
		if err != nil {
			t.Fatalf("loadConfig: %v", err)
		}
		if got, want := cfg.Addr(), "0.0.0.0:9090"; got != want {
			t.Fatalf("addr: want %s, got %s", want, got)
		}
		if got, want := cfg.Origins(), []string{"https://a.example", "https://b.example"}; !slices.Equal(got, want) {
			t.Fatalf("origins: want %v, got %v", want, got)
		}
		lvl, err := cfg.Level()
		if err != nil || lvl != slog.LevelDebug {
			t.Fatalf("level: want debug, got %v (%v)", lvl, err)
		}
		if cfg.KeepAlive != time.Minute {
			t.Fatalf("keepalive: want 1m, got %s", cfg.KeepAlive)
		}
	})
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSIONMCP_PORT", "9090")
	t.Setenv("SESSIONMCP_LOG_LEVEL", "warn")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	var flags serveFlags
	cmd := &cobra.Command{Use: "serve"}
	flags.register(cmd)
	if err := cmd.Flags().Parse([]string{"--port", "7000", "--redis-addr", "redis:6379"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	flags.override(cfg, cmd.Flags().Changed)

	if cfg.Port != 7000 {
		t.Fatalf("port: want flag value 7000, got %d", cfg.Port)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("redis: want flag value, got %q", cfg.RedisAddr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level: unset flag must keep env value, got %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{BindHost: "127.0.0.1", Port: 8000, LogLevel: "info", QueueSize: 64, DeliveryTimeout: time.Second}
	}
	cases := map[string]func(c *Config){
		"port out of range":   func(c *Config) { c.Port = 70000 },
		"unknown level":       func(c *Config) { c.LogLevel = "chatty" },
		"zero queue":          func(c *Config) { c.QueueSize = 0 },
		"zero timeout":        func(c *Config) { c.DeliveryTimeout = 0 },
		"negative keep-alive": func(c *Config) { c.KeepAlive = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatalf("want validation error")
			}
		})
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
}
