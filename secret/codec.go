package secret

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
)

const issueAttempts = 3

// Codec issues and redeems selector/token secrets.
type Codec struct {
	store  Store
	clock  clockwork.Clock
	random io.Reader
}

// NewCodec returns a codec over store. A nil clock means the real clock.
func NewCodec(store Store, clock clockwork.Clock) *Codec {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Codec{
		store:  store,
		clock:  clock,
		random: rand.Reader,
	}
}

// Issue creates and persists a secret for accountID valid for ttl. The
// returned Pair is the only place the raw token exists.
func (c *Codec) Issue(ctx context.Context, purpose Purpose, accountID string, ttl time.Duration) (Pair, error) {
	if !purpose.Valid() {
		return Pair{}, fmt.Errorf("secret: unknown purpose %d", purpose)
	}
	if accountID == "" {
		return Pair{}, errors.New("secret: account id required")
	}
	if ttl <= 0 {
		return Pair{}, errors.New("secret: ttl must be > 0")
	}

	for attempt := 0; attempt < issueAttempts; attempt++ {
		selector, err := c.randomString(selectorBytes)
		if err != nil {
			return Pair{}, err
		}
		token, err := c.randomString(tokenBytes)
		if err != nil {
			return Pair{}, err
		}

		now := c.clock.Now()
		expiresAt := now.Add(ttl)
		err = c.store.Save(ctx, Record{
			Purpose:   purpose,
			Selector:  selector,
			TokenHash: hashToken(token),
			AccountID: accountID,
			ExpiresAt: expiresAt,
		}, now)
		if errors.Is(err, ErrSelectorTaken) {
			continue
		}
		if err != nil {
			return Pair{}, err
		}

		return Pair{selector: selector, token: token, expiresAt: expiresAt}, nil
	}

	return Pair{}, ErrSelectorTaken
}

// Verify redeems a secret and returns its account id.
//
// The selector lookup is an ordinary read. The only secret-dependent step
// is a constant-time comparison of fixed-size hashes, followed by an
// atomic consume. Of several concurrent calls with the same pair exactly one
// succeeds; the rest get ErrNotFound. An expired record is revoked on sight
// and a failed revoke is reported instead of ErrExpired.
func (c *Codec) Verify(ctx context.Context, purpose Purpose, selector, token string) (string, error) {
	if selector == "" || token == "" {
		return "", ErrNotFound
	}

	rec, err := c.store.Find(ctx, selector)
	if err != nil {
		return "", err
	}
	if rec.Purpose != purpose || rec.Consumed {
		return "", ErrNotFound
	}

	now := c.clock.Now()
	if !now.Before(rec.ExpiresAt) {
		if err := c.store.Revoke(ctx, selector); err != nil {
			return "", err
		}
		return "", ErrExpired
	}

	supplied := hashToken(token)
	if subtle.ConstantTimeCompare(supplied[:], rec.TokenHash[:]) != 1 {
		return "", ErrInvalid
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	consumed, err := c.store.Consume(ctx, selector, supplied, now)
	if err != nil {
		return "", err
	}

	return consumed.AccountID, nil
}

// VerifyPair is Verify for a parsed or issued Pair.
func (c *Codec) VerifyPair(ctx context.Context, purpose Purpose, pair Pair) (string, error) {
	return c.Verify(ctx, purpose, pair.selector, pair.token)
}

// Revoke removes a single secret. Revoking an unknown selector is a no-op.
func (c *Codec) Revoke(ctx context.Context, selector string) error {
	if selector == "" {
		return nil
	}
	return c.store.Revoke(ctx, selector)
}

// RevokeAll removes every outstanding secret of purpose for accountID.
func (c *Codec) RevokeAll(ctx context.Context, accountID string, purpose Purpose) error {
	return c.store.RevokeAll(ctx, accountID, purpose)
}

func (c *Codec) randomString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.random, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
