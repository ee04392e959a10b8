package secret

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no live record exists for the selector, or it was
	// already consumed, or it belongs to a different purpose.
	ErrNotFound = errors.New("secret not found")
	// ErrExpired means the record exists but its expiry has passed.
	ErrExpired = errors.New("secret expired")
	// ErrInvalid means the token does not match the selector's record.
	ErrInvalid = errors.New("secret invalid")
	// ErrSelectorTaken is returned by Store.Save on a selector collision.
	ErrSelectorTaken = errors.New("secret selector already exists")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("secret store unavailable")
	// ErrEntropy is returned when the system random source fails.
	ErrEntropy = errors.New("random source unavailable")
)

// Record is the persisted form of an issued secret. The raw token is never
// stored, only its SHA-256.
type Record struct {
	Purpose   Purpose
	Selector  string
	TokenHash [32]byte
	AccountID string
	ExpiresAt time.Time
	Consumed  bool
}

// Store persists secret records.
//
// Consume must be a single atomic compare-and-set: succeed only when the
// record exists, is unconsumed, unexpired at now and matches tokenHash.
// Any other outcome returns ErrNotFound or ErrExpired and leaves the record
// untouched.
//
// Save derives any retention from rec.ExpiresAt relative to now, the
// issuing clock's reading, never from the wall clock.
type Store interface {
	Save(ctx context.Context, rec Record, now time.Time) error
	Find(ctx context.Context, selector string) (Record, error)
	Consume(ctx context.Context, selector string, tokenHash [32]byte, now time.Time) (Record, error)
	Revoke(ctx context.Context, selector string) error
	RevokeAll(ctx context.Context, accountID string, purpose Purpose) error
}
