package util

import "github.com/google/uuid"

// NewID returns an opaque store-assigned identifier.
func NewID() string {
	return uuid.NewString()
}
