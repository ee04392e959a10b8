package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no session exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrCorrupt is returned when a stored session cannot be decoded.
	ErrCorrupt = errors.New("session corrupt")
)

// Store persists sessions.
//
// Replace must remove oldID and activate sess in one atomic step so there is
// no moment where both ids are valid. Delete returns the removed session, or
// nil when there was none; only one of several concurrent deletes observes
// the session.
type Store interface {
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	Replace(ctx context.Context, oldID string, sess *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) (*Session, error)
	DeleteAllForAccount(ctx context.Context, accountID string) error
	ListForAccount(ctx context.Context, accountID string) ([]string, error)
}

// RedisStore keeps each session as a binary blob under prefix:id and
// indexes session ids per account.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a session store under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "akss"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStore) accountKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Save stores sess with ttl and indexes it under its account.
func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Replace deletes oldID and stores sess inside a single MULTI/EXEC.
func (s *RedisStore) Replace(ctx context.Context, oldID string, sess *Session, ttl time.Duration) error {
	if oldID == "" || oldID == sess.ID {
		return s.Save(ctx, sess, ttl)
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	// The owner is only needed to clean the index; the old blob itself is
	// removed regardless.
	var oldAccount string
	if prev, err := s.Get(ctx, oldID); err == nil {
		oldAccount = prev.AccountID
	} else if errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(oldID))
		if oldAccount != "" {
			pipe.SRem(ctx, s.accountKey(oldAccount), oldID)
		}
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get loads a session by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sess.ID = id
	return sess, nil
}

// Delete atomically reads and removes a session. Deleting a missing
// session is a no-op.
func (s *RedisStore) Delete(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.GetDel(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// Already gone; nothing left to index.
		return nil, nil
	}
	sess.ID = id

	if err := s.redis.SRem(ctx, s.accountKey(sess.AccountID), id).Err(); err != nil {
		return sess, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// DeleteAllForAccount removes every indexed session of accountID.
//
// A session saved between the index read and the delete survives this
// call; it still expires on its own TTL.
func (s *RedisStore) DeleteAllForAccount(ctx context.Context, accountID string) error {
	ids, err := s.ListForAccount(ctx, accountID)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			keys := make([]string, 0, len(ids))
			for _, id := range ids {
				keys = append(keys, s.key(id))
			}
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, s.accountKey(accountID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListForAccount returns the indexed session ids of accountID. Ids whose
// session already expired may still appear.
func (s *RedisStore) ListForAccount(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}
