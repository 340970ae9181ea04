package sessions

import "errors"

var (
	// ErrSessionNotFound indicates no live session carries the identifier.
	// Clients recover by opening a new stream.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when a session is torn down while (or
	// before) a message is being handed to it.
	ErrSessionClosed = errors.New("session closed")
	// ErrDeliveryTimeout is returned when a session's queue stayed full for
	// the whole delivery window.
	ErrDeliveryTimeout = errors.New("session delivery timed out")
	// ErrIDCollision is returned when identifier generation repeatedly
	// produced an identifier that is already live.
	ErrIDCollision = errors.New("session id collision")
	// ErrInvalidID indicates a malformed session identifier.
	ErrInvalidID = errors.New("invalid session id")
	// ErrRegistryClosed is returned by Create after the registry was closed.
	ErrRegistryClosed = errors.New("session registry closed")
)
