package sessions

import (
	"context"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
)

// Envelope is a single submitted JSON-RPC message bundled with the metadata
// of the session it was submitted to. The same Metadata value is attached to
// every envelope of a session.
type Envelope struct {
	SessionID string
	Message   jsonrpc.AnyMessage
	Raw       jsonrpc.Message
	Metadata  Metadata
}

type envelopeKey struct{}

// WithEnvelope returns a child context carrying env.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the envelope stored by WithEnvelope.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

// MetadataFromContext returns the session metadata of the envelope carried
// by ctx, or an empty Metadata.
func MetadataFromContext(ctx context.Context) Metadata {
	env, _ := EnvelopeFromContext(ctx)
	return env.Metadata
}

// Param returns the connection-time parameter key of the session whose
// message is being handled in ctx, or def when it was not supplied.
func Param(ctx context.Context, key, def string) string {
	if v, ok := MetadataFromContext(ctx).Lookup(key); ok {
		return v
	}
	return def
}

// NewEnvelope bundles msg, its raw bytes and the metadata of s.
func NewEnvelope(s *Session, msg *jsonrpc.AnyMessage, raw jsonrpc.Message) Envelope {
	return Envelope{SessionID: s.ID(), Message: *msg, Raw: raw, Metadata: s.Metadata()}
}
