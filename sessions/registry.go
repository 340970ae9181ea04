package sessions

import (
	"sync"
)

// DefaultQueueSize bounds each per-session queue unless WithQueueSize is
// used.
const DefaultQueueSize = 64

// Registry is the process-local table of live sessions. An entry exists
// exactly while its stream is open.
type Registry struct {
	queueSize int
	newID     func() string

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

type registryConfig struct {
	queueSize int
	newID     func() string
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

// WithQueueSize sets the capacity of both per-session queues. Values below
// one are ignored.
func WithQueueSize(n int) RegistryOption {
	return func(c *registryConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithIDGenerator replaces NewID as the identifier source.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(c *registryConfig) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := registryConfig{queueSize: DefaultQueueSize, newID: NewID}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		queueSize: cfg.queueSize,
		newID:     cfg.newID,
		sessions:  make(map[string]*Session),
	}
}

// Create registers a new session carrying meta. If the generated identifier
// is already live a second one is drawn; a repeated collision fails with
// ErrIDCollision.
func (r *Registry) Create(meta Metadata) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	for range 2 {
		id := r.newID()
		if _, exists := r.sessions[id]; exists {
			continue
		}
		s := newSession(id, meta, r.queueSize)
		r.sessions[id] = s
		return s, nil
	}
	return nil, ErrIDCollision
}

// Lookup returns the live session for id.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Metadata returns the captured metadata of the live session id.
func (r *Registry) Metadata(id string) (Metadata, error) {
	s, err := r.Lookup(id)
	if err != nil {
		return Metadata{}, err
	}
	return s.Metadata(), nil
}

// Remove deregisters and closes the session id. It reports whether a live
// session was removed; removing an unknown id is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		s.close()
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close removes and closes every live session. Subsequent Create calls fail
// with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	live := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range live {
		s.close()
	}
}
