package secret

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Expired records stay readable this long so Verify can tell an expired
// secret from an unknown one.
const expiredGrace = time.Hour

const saveScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "p", ARGV[1], "h", ARGV[2], "a", ARGV[3], "e", ARGV[4], "c", "0")
local ttl = tonumber(ARGV[5])
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("SADD", KEYS[2], ARGV[6])
if redis.call("PTTL", KEYS[2]) < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var saveLua = redis.NewScript(saveScript)

// Returns {0} not found or already consumed, {1, account} consumed now,
// {2} expired.
const consumeScript = `
local rec = redis.call("HMGET", KEYS[1], "p", "h", "a", "e", "c")
if not rec[1] then
  return {0}
end
if rec[5] ~= "0" then
  return {0}
end
if rec[2] ~= ARGV[1] then
  return {0}
end
if tonumber(rec[4]) <= tonumber(ARGV[2]) then
  return {2}
end
redis.call("HSET", KEYS[1], "c", "1")
redis.call("SREM", ARGV[3] .. rec[3] .. ":" .. rec[1], ARGV[4])
return {1, rec[3], rec[1], rec[4]}
`

var consumeLua = redis.NewScript(consumeScript)

const revokeScript = `
local rec = redis.call("HMGET", KEYS[1], "p", "a")
if not rec[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. rec[2] .. ":" .. rec[1], ARGV[2])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const revokeAllScript = `
local selectors = redis.call("SMEMBERS", KEYS[1])
for _, sel in ipairs(selectors) do
  redis.call("DEL", ARGV[1] .. sel)
end
redis.call("DEL", KEYS[1])
return #selectors
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// RedisStore keeps each record in a hash keyed by selector and indexes
// selectors per account and purpose so they can be revoked in bulk.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store that namespaces keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "aks"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// Save inserts rec unless its selector already exists. The key lives until
// rec.ExpiresAt, measured from now, plus expiredGrace.
func (s *RedisStore) Save(ctx context.Context, rec Record, now time.Time) error {
	ttl := rec.ExpiresAt.Sub(now) + expiredGrace
	if ttl < expiredGrace {
		ttl = expiredGrace
	}

	res, err := saveLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.Selector), s.indexKey(rec.AccountID, rec.Purpose)},
		rec.Purpose.String(),
		rec.TokenHash[:],
		rec.AccountID,
		rec.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
		rec.Selector,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if res == 0 {
		return ErrSelectorTaken
	}
	return nil
}

// Find loads the record for selector.
func (s *RedisStore) Find(ctx context.Context, selector string) (Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(selector)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrNotFound
	}

	rec, err := decodeRecord(selector, fields)
	if err != nil {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Consume atomically marks the record consumed.
func (s *RedisStore) Consume(ctx context.Context, selector string, tokenHash [32]byte, now time.Time) (Record, error) {
	res, err := consumeLua.Run(ctx, s.redis,
		[]string{s.recordKey(selector)},
		tokenHash[:],
		now.UnixMilli(),
		s.indexPrefix(),
		selector,
	).Slice()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) == 0 {
		return Record{}, ErrNotFound
	}

	status, _ := res[0].(int64)
	switch status {
	case 1:
	case 2:
		return Record{}, ErrExpired
	default:
		return Record{}, ErrNotFound
	}
	if len(res) < 4 {
		return Record{}, ErrNotFound
	}

	account, _ := res[1].(string)
	purpose, _ := res[2].(string)
	expires, _ := res[3].(string)
	expiresMS, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return Record{}, ErrNotFound
	}

	return Record{
		Purpose:   parsePurpose(purpose),
		Selector:  selector,
		TokenHash: tokenHash,
		AccountID: account,
		ExpiresAt: time.UnixMilli(expiresMS),
		Consumed:  true,
	}, nil
}

// Revoke deletes the record for selector, if any.
func (s *RedisStore) Revoke(ctx context.Context, selector string) error {
	err := revokeLua.Run(ctx, s.redis,
		[]string{s.recordKey(selector)},
		s.indexPrefix(),
		selector,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll deletes every indexed record of purpose for accountID.
func (s *RedisStore) RevokeAll(ctx context.Context, accountID string, purpose Purpose) error {
	err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.indexKey(accountID, purpose)},
		s.prefix+":sel:",
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) recordKey(selector string) string {
	return s.prefix + ":sel:" + selector
}

func (s *RedisStore) indexPrefix() string {
	return s.prefix + ":acct:"
}

func (s *RedisStore) indexKey(accountID string, purpose Purpose) string {
	return s.indexPrefix() + accountID + ":" + purpose.String()
}

func decodeRecord(selector string, fields map[string]string) (Record, error) {
	purpose := parsePurpose(fields["p"])
	if !purpose.Valid() {
		return Record{}, errors.New("unknown purpose")
	}

	hash := fields["h"]
	if len(hash) != 32 {
		return Record{}, errors.New("bad token hash")
	}

	expiresMS, err := strconv.ParseInt(fields["e"], 10, 64)
	if err != nil {
		return Record{}, errors.New("bad expiry")
	}

	rec := Record{
		Purpose:   purpose,
		Selector:  selector,
		AccountID: fields["a"],
		ExpiresAt: time.UnixMilli(expiresMS),
		Consumed:  fields["c"] != "0",
	}
	copy(rec.TokenHash[:], hash)
	return rec, nil
}
