package authkit

import (
	"context"
	"time"

	"github.com/MrEthical07/authkit/secret"
)

// AccountStatus is the verification state of an account. It only ever moves
// from StatusUnverified to StatusVerified.
type AccountStatus uint8

const (
	StatusUnverified AccountStatus = iota
	StatusVerified
)

func (s AccountStatus) String() string {
	if s == StatusVerified {
		return "verified"
	}
	return "unverified"
}

// Account is the persisted identity record.
type Account struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Status       AccountStatus
	CreatedAt    time.Time
	LastLoginAt  time.Time
	FailedLogins int
}

// AccountStore is the persistence collaborator for accounts.
//
// Create returns ErrProviderDuplicateEmail or ErrProviderDuplicateUsername on
// conflicts; a store used with unique usernames must detect a taken
// non-empty username atomically with the insert. Lookups return ErrProviderNotFound, and ByUsername returns
// ErrProviderAmbiguous when several accounts share a username. MarkVerified
// must be idempotent and never clear verification. RecordLogin stamps
// LastLoginAt and resets FailedLogins on success, or increments FailedLogins
// on failure. An empty id matches no account and returns ErrProviderNotFound.
// Any other error is treated as the store being unavailable.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	ByID(ctx context.Context, id string) (*Account, error)
	ByEmail(ctx context.Context, email string) (*Account, error)
	ByUsername(ctx context.Context, username string) (*Account, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time, success bool) error
}

// DeliveryFunc sends pair to email out of band. It runs after the secret is
// persisted and outside any lock.
type DeliveryFunc func(ctx context.Context, email string, pair secret.Pair) error

// RegisterRequest is the input of Register. A nil Verify registers the
// account as already verified.
type RegisterRequest struct {
	Email    string
	Password string
	Username string
	Verify   DeliveryFunc
}

// RegisterResult is returned by Register. Verification is set when a
// verification secret was issued.
type RegisterResult struct {
	AccountID    string
	Verification *secret.Pair
}

// LoginResult is returned by the login operations. RememberMe is set when a
// remember-me secret was issued; hand it to the client as a long-lived
// value.
type LoginResult struct {
	State      *State
	RememberMe *secret.Pair
}
