package password

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many hash or verify computations run at once so a burst
// of logins cannot monopolize every CPU.
type Pool struct {
	hasher *Argon2
	sem    *semaphore.Weighted
}

// NewPool wraps hasher with a concurrency limit. limit <= 0 means
// runtime.NumCPU().
func NewPool(hasher *Argon2, limit int) *Pool {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(limit)),
	}
}

// Hash waits for a free slot, then hashes password.
func (p *Pool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	return p.hasher.Hash(password)
}

// Verify waits for a free slot, then verifies password against digest.
// The only error is ctx cancellation while waiting.
func (p *Pool) Verify(ctx context.Context, password, digest string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	return p.hasher.Verify(password, digest), nil
}

// NeedsRehash is cheap and does not take a slot.
func (p *Pool) NeedsRehash(digest string) bool {
	return p.hasher.NeedsRehash(digest)
}
