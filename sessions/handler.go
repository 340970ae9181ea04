package sessions

import "context"

// MessageHandler consumes envelopes delivered to a session. Implementations
// reply, if at all, by calling Session.Send; replies may happen at any later
// time while the session is live.
type MessageHandler interface {
	HandleMessage(ctx context.Context, s *Session, env Envelope) error
}

// MessageHandlerFunc adapts an ordinary function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, s *Session, env Envelope) error

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, s *Session, env Envelope) error {
	return f(ctx, s, env)
}
