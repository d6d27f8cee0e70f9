package keyrepo

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no credential exists for the email.
	ErrNotFound = errors.New("key not found")

	// ErrKeyExists indicates a credential was already issued for the email.
	ErrKeyExists = errors.New("key already exists")
)

// Key is an access credential. Email is the unique identity; Key is opaque.
type Key struct {
	Email string
	Key   string
}

// Store persists one access key per distinct email.
//
// Issue is not idempotent: it fails with ErrKeyExists when the email already has a key,
// so callers look up first.
type Store interface {
	FindByEmail(ctx context.Context, email string) (Key, error)
	Issue(ctx context.Context, email string) (Key, error)
}
