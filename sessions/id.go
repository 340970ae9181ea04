package sessions

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// IDLength is the length of the external session identifier representation.
const IDLength = 32

// NewID returns a fresh session identifier: the 32 character lowercase hex
// encoding of a random (version 4) UUID.
func NewID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ParseID validates s as a session identifier and returns its canonical
// form. Besides the canonical 32 character hex form, the dashed, braced and
// urn:uuid: UUID spellings are accepted and normalized.
func ParseID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidID)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return hex.EncodeToString(id[:]), nil
}
