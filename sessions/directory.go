package sessions

import (
	"context"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
)

// ForwardHandlerFunc receives a payload forwarded from another instance.
type ForwardHandlerFunc func(ctx context.Context, msg jsonrpc.Message) error

// Directory tracks which transport instance owns each live session and moves
// raw submissions between instances. All methods must be safe for concurrent
// use.
type Directory interface {
	// Claim records the caller as owner of id. It fails with ErrIDCollision
	// when id is already claimed.
	Claim(ctx context.Context, id string) error
	// Release forgets ownership of id. Releasing an unclaimed id is not an
	// error.
	Release(ctx context.Context, id string) error
	// Forward hands msg to the owner of id. It returns ErrSessionNotFound
	// when nobody owns id.
	Forward(ctx context.Context, id string, msg jsonrpc.Message) error
	// Receive invokes fn, in order, for every payload forwarded to id until
	// ctx ends, fn returns an error or the claim is released.
	Receive(ctx context.Context, id string, fn ForwardHandlerFunc) error
}
