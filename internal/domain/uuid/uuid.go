// Package uuid wraps google/uuid for the identifiers the service generates itself:
// record keys when the caller omits one, request ids and change event ids.
package uuid

import (
	"github.com/google/uuid"
)

// UUID is a textual UUID.
type UUID string

// NewUUID creates a random (v4) UUID.
func NewUUID() UUID {
	return UUID(uuid.New().String())
}

// ParseUUID validates s and returns it as a UUID.
func ParseUUID(s string) (UUID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return UUID(s), nil
}

// String returns the textual form.
func (u UUID) String() string {
	return string(u)
}

// IsZero reports whether the UUID is empty.
func (u UUID) IsZero() bool {
	return u == ""
}
