package memorydir

import (
	"context"
	"sync"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/sessions"
)

const defaultBuffer = 64

// Dir is an in-memory implementation of sessions.Directory.
type Dir struct {
	buffer int

	mu     sync.Mutex
	claims map[string]*claim
}

type claim struct {
	msgs     chan jsonrpc.Message
	released chan struct{}
	once     sync.Once
}

func (c *claim) release() {
	c.once.Do(func() { close(c.released) })
}

// Option configures a Dir.
type Option func(*Dir)

// WithBuffer sets how many forwarded payloads may wait for the owner before
// Forward blocks.
func WithBuffer(n int) Option {
	return func(d *Dir) {
		if n > 0 {
			d.buffer = n
		}
	}
}

// New returns an empty directory.
func New(opts ...Option) *Dir {
	d := &Dir{buffer: defaultBuffer, claims: make(map[string]*claim)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dir) Claim(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.claims[id]; ok {
		return sessions.ErrIDCollision
	}
	d.claims[id] = &claim{
		msgs:     make(chan jsonrpc.Message, d.buffer),
		released: make(chan struct{}),
	}
	return nil
}

func (d *Dir) Release(ctx context.Context, id string) error {
	d.mu.Lock()
	c, ok := d.claims[id]
	delete(d.claims, id)
	d.mu.Unlock()
	if ok {
		c.release()
	}
	return nil
}

func (d *Dir) Forward(ctx context.Context, id string, msg jsonrpc.Message) error {
	c := d.lookup(id)
	if c == nil {
		return sessions.ErrSessionNotFound
	}
	cp := append(jsonrpc.Message(nil), msg...)
	select {
	case c.msgs <- cp:
		return nil
	case <-c.released:
		return sessions.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dir) Receive(ctx context.Context, id string, fn sessions.ForwardHandlerFunc) error {
	c := d.lookup(id)
	if c == nil {
		return sessions.ErrSessionNotFound
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.released:
			return nil
		case msg := <-c.msgs:
			if err := fn(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (d *Dir) lookup(id string) *claim {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claims[id]
}

var _ sessions.Directory = (*Dir)(nil)
