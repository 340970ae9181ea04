package redisdir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/sessions"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr      = "localhost:6379"
	defaultKeyPrefix = "sessionmcp:dir:"
	defaultClaimTTL  = 30 * time.Second
	pollInterval     = 500 * time.Millisecond
)

// Config for the Redis-backed Directory. Defaults can be loaded via
// envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=sessionmcp:dir:"`
	// ClaimTTL bounds how long a claim outlives a silent owner.
	// ENV: SESSIONS_CLAIM_TTL
	ClaimTTL time.Duration `env:"SESSIONS_CLAIM_TTL,default=30s"`
}

// Dir is a Redis implementation of sessions.Directory.
type Dir struct {
	client    *redis.Client
	keyPrefix string
	claimTTL  time.Duration
}

// New connects to Redis and verifies the connection with PING.
func New(cfg Config) (*Dir, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = defaultAddr
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := cfg.ClaimTTL
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &Dir{client: cl, keyPrefix: prefix, claimTTL: ttl}, nil
}

// NewFromEnv builds a Dir using envdecode to populate Config.
func NewFromEnv() (*Dir, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis directory config: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (d *Dir) Close() error { return d.client.Close() }

func (d *Dir) claimKey(id string) string  { return d.keyPrefix + "claim:" + id }
func (d *Dir) streamKey(id string) string { return d.keyPrefix + "stream:" + id }

func (d *Dir) Claim(ctx context.Context, id string) error {
	ok, err := d.client.SetNX(ctx, d.claimKey(id), "1", d.claimTTL).Result()
	if err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return sessions.ErrIDCollision
	}
	return nil
}

func (d *Dir) Release(ctx context.Context, id string) error {
	c := context.WithoutCancel(ctx)
	if err := d.client.Del(c, d.claimKey(id), d.streamKey(id)).Err(); err != nil {
		return fmt.Errorf("release session: %w", err)
	}
	return nil
}

var forwardScript = redis.NewScript(`
local claim = KEYS[1]
local stream = KEYS[2]
if redis.call('EXISTS', claim) == 1 then
  redis.call('XADD', stream, '*', 'd', ARGV[1])
  redis.call('PEXPIRE', stream, ARGV[2])
  return 1
end
return 0
`)

func (d *Dir) Forward(ctx context.Context, id string, msg jsonrpc.Message) error {
	keys := []string{d.claimKey(id), d.streamKey(id)}
	res, err := forwardScript.Run(ctx, d.client, keys, []byte(msg), d.claimTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("forward to session: %w", err)
	}
	if res == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (d *Dir) Receive(ctx context.Context, id string, fn sessions.ForwardHandlerFunc) error {
	key := d.streamKey(id)
	start := "0-0"

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Keep the claim alive; a missing key means it was released.
		alive, err := d.client.Expire(ctx, d.claimKey(id), d.claimTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("refresh claim: %w", err)
		}
		if !alive {
			return nil
		}

		res, err := d.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, start}, Count: 16, Block: pollInterval}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read forwarded messages: %w", err)
		}
		for _, stream := range res {
			for _, m := range stream.Messages {
				start = m.ID
				var payload []byte
				switch v := m.Values["d"].(type) {
				case string:
					payload = []byte(v)
				case []byte:
					payload = v
				default:
					continue
				}
				if err := fn(ctx, jsonrpc.Message(payload)); err != nil {
					return err
				}
			}
		}
	}
}

var _ sessions.Directory = (*Dir)(nil)
