// Package store provides key-value persistence for the auth subsystem.
//
// Two lifetimes are in play: the durable store keeps the session token
// across dashboard restarts, and the ephemeral store holds the anti-CSRF
// state for exactly one OAuth round trip. Both are served by the same
// interface so the handshake and session manager can be tested against
// the in-memory implementation.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key doesn't exist.
var ErrNotFound = errors.New("key not found")

// Well-known keys used by the auth subsystem.
const (
	// SessionTokenKey holds the bearer token in the durable store.
	SessionTokenKey = "session_token"

	// OAuthStateKey holds the anti-CSRF state in the ephemeral store.
	OAuthStateKey = "oauth_state"
)

// Store is an opaque string key-value store. Writes are last-write-wins.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Take returns the value for key and deletes it in one step, or
	// ErrNotFound. A second Take with the same key always fails because
	// the value no longer exists after the first.
	Take(ctx context.Context, key string) (string, error)
}
