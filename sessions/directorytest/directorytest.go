// Package directorytest holds the behavioural suite every sessions.Directory
// implementation must pass.
package directorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
	"github.com/ggoodman/sessionmcp-go/sessions"
)

// DirectoryFactory creates a new Directory instance for testing.
type DirectoryFactory func(t *testing.T) sessions.Directory

// Run runs the complete Directory test suite against the provided factory.
func Run(t *testing.T, factory DirectoryFactory) {
	t.Run("Claim_SecondClaimCollides", func(t *testing.T) { testSecondClaimCollides(t, factory) })
	t.Run("Claim_ReclaimAfterRelease", func(t *testing.T) { testReclaimAfterRelease(t, factory) })
	t.Run("Release_Idempotent", func(t *testing.T) { testReleaseIdempotent(t, factory) })
	t.Run("Forward_UnknownSessionNotFound", func(t *testing.T) { testForwardUnknown(t, factory) })
	t.Run("Forward_AfterReleaseNotFound", func(t *testing.T) { testForwardAfterRelease(t, factory) })
	t.Run("Forward_BufferedBeforeReceiveInOrder", func(t *testing.T) { testForwardBeforeReceive(t, factory) })
	t.Run("Forward_IsolationBetweenSessions", func(t *testing.T) { testIsolation(t, factory) })
	t.Run("Receive_StopsOnRelease", func(t *testing.T) { testReceiveStopsOnRelease(t, factory) })
	t.Run("Receive_ContextCancellation", func(t *testing.T) { testReceiveCancellation(t, factory) })
	t.Run("Receive_HandlerErrorStopsLoop", func(t *testing.T) { testReceiveHandlerError(t, factory) })
}

func msg(i int) jsonrpc.Message {
	return jsonrpc.Message(fmt.Sprintf(`{"jsonrpc":"2.0","method":"test/method","id":%d}`, i))
}

func mustClaim(t *testing.T, d sessions.Directory, id string) {
	t.Helper()
	if err := d.Claim(context.Background(), id); err != nil {
		t.Fatalf("Claim(%s): %v", id, err)
	}
	t.Cleanup(func() { _ = d.Release(context.Background(), id) })
}

// collect runs Receive in the background and returns a channel yielding each
// payload as a string.
func collect(ctx context.Context, d sessions.Directory, id string) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- d.Receive(ctx, id, func(ctx context.Context, m jsonrpc.Message) error {
			out <- string(m)
			return nil
		})
	}()
	return out, done
}

func testSecondClaimCollides(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	mustClaim(t, d, id)

	err := d.Claim(context.Background(), id)
	if !errors.Is(err, sessions.ErrIDCollision) {
		t.Fatalf("second Claim: want ErrIDCollision, got %v", err)
	}
}

func testReclaimAfterRelease(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	if err := d.Claim(context.Background(), id); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := d.Release(context.Background(), id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	mustClaim(t, d, id)
}

func testReleaseIdempotent(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	if err := d.Release(context.Background(), id); err != nil {
		t.Fatalf("Release of unclaimed id: %v", err)
	}
	mustClaim(t, d, id)
	for i := 0; i < 2; i++ {
		if err := d.Release(context.Background(), id); err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
	}
}

func testForwardUnknown(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	err := d.Forward(context.Background(), sessions.NewID(), msg(1))
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func testForwardAfterRelease(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	if err := d.Claim(context.Background(), id); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := d.Release(context.Background(), id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	err := d.Forward(context.Background(), id, msg(1))
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func testForwardBeforeReceive(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	mustClaim(t, d, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 1; i <= 3; i++ {
		if err := d.Forward(ctx, id, msg(i)); err != nil {
			t.Fatalf("Forward %d: %v", i, err)
		}
	}

	out, done := collect(ctx, d, id)
	for i := 1; i <= 3; i++ {
		select {
		case got := <-out:
			if want := string(msg(i)); got != want {
				t.Fatalf("payload %d: want %s, got %s", i, want, got)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for payload %d", i)
		}
	}
	cancel()
	<-done
}

func testIsolation(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	a, b := sessions.NewID(), sessions.NewID()
	mustClaim(t, d, a)
	mustClaim(t, d, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outA, doneA := collect(ctx, d, a)
	outB, doneB := collect(ctx, d, b)

	if err := d.Forward(ctx, a, msg(1)); err != nil {
		t.Fatalf("Forward a: %v", err)
	}
	if err := d.Forward(ctx, b, msg(2)); err != nil {
		t.Fatalf("Forward b: %v", err)
	}

	for _, tc := range []struct {
		name string
		out  <-chan string
		want string
	}{
		{"a", outA, string(msg(1))},
		{"b", outB, string(msg(2))},
	} {
		select {
		case got := <-tc.out:
			if got != tc.want {
				t.Fatalf("session %s: want %s, got %s", tc.name, tc.want, got)
			}
		case <-ctx.Done():
			t.Fatalf("session %s: timed out", tc.name)
		}
	}

	// Nothing else should show up on either side.
	select {
	case extra := <-outA:
		t.Fatalf("session a received unexpected payload %s", extra)
	case extra := <-outB:
		t.Fatalf("session b received unexpected payload %s", extra)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	<-doneA
	<-doneB
}

func testReceiveStopsOnRelease(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	if err := d.Claim(context.Background(), id); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, done := collect(ctx, d, id)

	time.Sleep(100 * time.Millisecond)
	if err := d.Release(context.Background(), id); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Receive after release: want nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Receive did not stop after release")
	}
}

func testReceiveCancellation(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	mustClaim(t, d, id)

	ctx, cancel := context.WithCancel(context.Background())
	_, done := collect(ctx, d, id)

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Receive did not stop after cancellation")
	}
}

func testReceiveHandlerError(t *testing.T, factory DirectoryFactory) {
	d := factory(t)
	id := sessions.NewID()
	mustClaim(t, d, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("boom")
	var mu sync.Mutex
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- d.Receive(ctx, id, func(ctx context.Context, m jsonrpc.Message) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return boom
		})
	}()

	if err := d.Forward(ctx, id, msg(1)); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("want handler error, got %v", err)
		}
	case <-ctx.Done():
		t.Fatalf("Receive did not stop on handler error")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("want 1 handler call, got %d", calls)
	}
}
