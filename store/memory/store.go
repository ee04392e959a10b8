// Package memory is an in-process authkit.AccountStore for demos, load
// tests and single-node tooling. Accounts are lost when the process exits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authkit"
)

// Store keeps accounts in maps guarded by a RWMutex. Returned accounts are
// copies.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*authkit.Account
	byEmail    map[string]string
	byUsername map[string]int

	sharedUsernames bool
}

var _ authkit.AccountStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// AllowSharedUsernames lets several accounts use one username. Pair it with
// Account.RequireUniqueUsername = false.
func AllowSharedUsernames() Option {
	return func(s *Store) { s.sharedUsernames = true }
}

// New returns an empty store. Non-empty usernames are unique unless
// AllowSharedUsernames is given.
func New(opts ...Option) *Store {
	s := &Store{
		byID:       make(map[string]*authkit.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(_ context.Context, account *authkit.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return authkit.ErrProviderDuplicateEmail
	}
	if account.Username != "" && !s.sharedUsernames && s.byUsername[account.Username] > 0 {
		return authkit.ErrProviderDuplicateUsername
	}
	cp := *account
	s.byID[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	if cp.Username != "" {
		s.byUsername[cp.Username]++
	}
	return nil
}

func (s *Store) ByID(_ context.Context, id string) (*authkit.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyOf(id)
}

func (s *Store) ByEmail(_ context.Context, email string) (*authkit.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, authkit.ErrProviderNotFound
	}
	return s.copyOf(id)
}

func (s *Store) ByUsername(_ context.Context, username string) (*authkit.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *authkit.Account
	for _, a := range s.byID {
		if username == "" || a.Username != username {
			continue
		}
		if found != nil {
			return nil, authkit.ErrProviderAmbiguous
		}
		found = a
	}
	if found == nil {
		return nil, authkit.ErrProviderNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *Store) UpdatePassword(_ context.Context, id, hash string) error {
	return s.update(id, func(a *authkit.Account) { a.PasswordHash = hash })
}

func (s *Store) MarkVerified(_ context.Context, id string) error {
	return s.update(id, func(a *authkit.Account) { a.Status = authkit.StatusVerified })
}

func (s *Store) RecordLogin(_ context.Context, id string, at time.Time, success bool) error {
	return s.update(id, func(a *authkit.Account) {
		if success {
			a.LastLoginAt = at
			a.FailedLogins = 0
			return
		}
		a.FailedLogins++
	})
}

// Len reports how many accounts are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Store) update(id string, fn func(*authkit.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return authkit.ErrProviderNotFound
	}
	fn(a)
	return nil
}

func (s *Store) copyOf(id string) (*authkit.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, authkit.ErrProviderNotFound
	}
	cp := *a
	return &cp, nil
}
