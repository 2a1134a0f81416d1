// Package id provides identifier generation for all entities.
// IDs are UUIDv7, time-ordered, so movement ledgers and documents sort
// naturally by creation time without a separate index.
package id

import (
	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7 per RFC 9562.
func New() ID {
	v7, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source does; fall back to V4
		return uuid.New()
	}
	return v7
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Zero returns the zero-value UUID.
func Zero() ID {
	return uuid.Nil
}

// IsZero checks if ID is the zero value.
func IsZero(id ID) bool {
	return id == uuid.Nil
}
