package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
)

func TestRegistryCreateLookupRemove(t *testing.T) {
	r := NewRegistry()
	md := NewMetadata(map[string]string{"auth": "ABC123"})

	s, err := r.Create(md)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.State() != StateCreated {
		t.Fatalf("new session state: want created, got %s", s.State())
	}

	got, err := r.Lookup(s.ID())
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != s {
		t.Fatalf("Lookup returned a different session")
	}
	gotMD, err := r.Metadata(s.ID())
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if !gotMD.Equal(md) {
		t.Fatalf("metadata: want %v, got %v", md.Map(), gotMD.Map())
	}

	if !r.Remove(s.ID()) {
		t.Fatalf("Remove: want true on first call")
	}
	if r.Remove(s.ID()) {
		t.Fatalf("Remove: want false on second call")
	}
	if _, err := r.Lookup(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Lookup after remove: want ErrSessionNotFound, got %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("removed session state: want closed, got %s", s.State())
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done not closed after Remove")
	}
}

func TestRegistryConcurrentCreateUnique(t *testing.T) {
	r := NewRegistry()
	const n = 200

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Create(Metadata{})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- s.ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	if r.Len() != n {
		t.Fatalf("Len: want %d, got %d", n, r.Len())
	}
}

func TestRegistryCollisionRegenerates(t *testing.T) {
	seq := []string{"aaaa", "aaaa", "bbbb"}
	var mu sync.Mutex
	gen := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := seq[0]
		seq = seq[1:]
		return id
	}
	r := NewRegistry(WithIDGenerator(gen))

	first, err := r.Create(Metadata{})
	if err != nil {
		t.Fatalf("Create #1: %v", err)
	}
	second, err := r.Create(Metadata{})
	if err != nil {
		t.Fatalf("Create #2: %v", err)
	}
	if first.ID() != "aaaa" || second.ID() != "bbbb" {
		t.Fatalf("want ids aaaa, bbbb; got %s, %s", first.ID(), second.ID())
	}
}

func TestRegistryRepeatedCollisionFails(t *testing.T) {
	r := NewRegistry(WithIDGenerator(func() string { return "same" }))
	if _, err := r.Create(Metadata{}); err != nil {
		t.Fatalf("Create #1: %v", err)
	}
	if _, err := r.Create(Metadata{}); !errors.Is(err, ErrIDCollision) {
		t.Fatalf("Create #2: want ErrIDCollision, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len: want 1, got %d", r.Len())
	}
}

func TestRegistryNoResurrection(t *testing.T) {
	r := NewRegistry()
	s, err := r.Create(Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	r.Remove(s.ID())

	for i := 0; i < 50; i++ {
		n, err := r.Create(Metadata{})
		if err != nil {
			t.Fatal(err)
		}
		if n.ID() == s.ID() {
			t.Fatalf("removed id %s was reissued", s.ID())
		}
	}
	if _, err := r.Lookup(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Create(Metadata{})
	b, _ := r.Create(Metadata{})

	r.Close()

	if r.Len() != 0 {
		t.Fatalf("Len after Close: want 0, got %d", r.Len())
	}
	for _, s := range []*Session{a, b} {
		if s.State() != StateClosed {
			t.Fatalf("session %s: want closed, got %s", s.ID(), s.State())
		}
	}
	if _, err := r.Create(Metadata{}); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("Create after Close: want ErrRegistryClosed, got %v", err)
	}
}

func TestSessionStateForwardOnly(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Create(Metadata{})

	if s.Activate() {
		t.Fatalf("Activate from created must not skip announced")
	}
	if !s.Announce() {
		t.Fatalf("Announce from created should succeed")
	}
	if s.Announce() {
		t.Fatalf("second Announce should be ignored")
	}
	if !s.Activate() {
		t.Fatalf("Activate from announced should succeed")
	}
	r.Remove(s.ID())
	if s.Announce() || s.Activate() {
		t.Fatalf("closed session must not move backwards")
	}
	if s.State() != StateClosed {
		t.Fatalf("want closed, got %s", s.State())
	}
}

func TestSessionDeliverFIFO(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Create(Metadata{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		env := Envelope{SessionID: s.ID(), Raw: jsonrpc.Message(fmt.Sprintf(`"M%d"`, i))}
		if err := s.Deliver(ctx, env); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}
	for i := 1; i <= 3; i++ {
		env := <-s.Inbound()
		if want := fmt.Sprintf(`"M%d"`, i); string(env.Raw) != want {
			t.Fatalf("position %d: want %s, got %s", i, want, env.Raw)
		}
	}
}

func TestSessionSendFIFO(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Create(Metadata{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.Send(ctx, jsonrpc.Message(fmt.Sprintf(`"M%d"`, i))); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	for i := 1; i <= 3; i++ {
		got := <-s.Outbound()
		if want := fmt.Sprintf(`"M%d"`, i); string(got) != want {
			t.Fatalf("position %d: want %s, got %s", i, want, got)
		}
	}
}

func TestSessionDeliverTimeout(t *testing.T) {
	r := NewRegistry(WithQueueSize(1))
	s, _ := r.Create(Metadata{})

	if err := s.Deliver(context.Background(), Envelope{}); err != nil {
		t.Fatalf("first Deliver: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Deliver(ctx, Envelope{})
	if !errors.Is(err, ErrDeliveryTimeout) {
		t.Fatalf("want ErrDeliveryTimeout, got %v", err)
	}
}

func TestSessionDeliverAfterClose(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Create(Metadata{})
	r.Remove(s.ID())

	if err := s.Deliver(context.Background(), Envelope{}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Deliver: want ErrSessionClosed, got %v", err)
	}
	if err := s.Send(context.Background(), jsonrpc.Message(`{}`)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Send: want ErrSessionClosed, got %v", err)
	}
}

func TestSessionBlockedDeliverFailsOnClose(t *testing.T) {
	r := NewRegistry(WithQueueSize(1))
	s, _ := r.Create(Metadata{})
	_ = s.Deliver(context.Background(), Envelope{})

	errc := make(chan error, 1)
	go func() { errc <- s.Deliver(context.Background(), Envelope{}) }()

	time.Sleep(50 * time.Millisecond)
	r.Remove(s.ID())

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("want ErrSessionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("blocked Deliver did not return after close")
	}
}
