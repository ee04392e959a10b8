package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket fields: count, start (unix ms), lock (unix ms), strikes, denied
// (1 when the current window has already produced a denial).
//
// Returns {allowed, count, retry_ms}.
const applyScript = `
local key = KEYS[1]
local cost = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local threshold = tonumber(ARGV[4])
local lock_base = tonumber(ARGV[5])
local lock_max = tonumber(ARGV[6])

local b = redis.call("HMGET", key, "count", "start", "lock", "strikes", "denied")
local count = tonumber(b[1]) or 0
local start = tonumber(b[2]) or now
local lock = tonumber(b[3]) or 0
local strikes = tonumber(b[4]) or 0
local denied = tonumber(b[5]) or 0

if lock > now then
  return {0, count, lock - now}
end

if now - start >= window then
  if denied == 0 then
    strikes = 0
  end
  count = 0
  start = now
  denied = 0
end

count = count + cost
local allowed = 1
local retry = 0
if count > threshold then
  allowed = 0
  denied = 1
  retry = start + window - now
  if lock_base > 0 then
    strikes = strikes + 1
    local backoff = math.floor(lock_base * (2 ^ (strikes - 1)))
    if backoff > lock_max then
      backoff = lock_max
    end
    lock = now + backoff
    if backoff > retry then
      retry = backoff
    end
  end
end

redis.call("HSET", key, "count", count, "start", start, "lock", lock, "strikes", strikes, "denied", denied)

local keep = start + window - now
if lock - now > keep then
  keep = lock - now
end
redis.call("PEXPIRE", key, keep + window)

return {allowed, count, retry}
`

var applyLua = redis.NewScript(applyScript)

// RedisStore keeps each bucket in a Redis hash. The caller supplies the
// current time so the outcome never depends on the Redis server clock.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store that namespaces keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "akt"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

// Apply runs the atomic increment-or-reset step.
func (s *RedisStore) Apply(ctx context.Context, key string, cost int, now time.Time, limit Limit) (Decision, error) {
	res, err := applyLua.Run(ctx, s.redis,
		[]string{s.key(key)},
		cost,
		now.UnixMilli(),
		limit.Window.Milliseconds(),
		limit.Threshold,
		limit.LockoutBase.Milliseconds(),
		limit.LockoutMax.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected apply reply", ErrStoreUnavailable)
	}

	d := Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}

// Peek reads a bucket without modifying it.
func (s *RedisStore) Peek(ctx context.Context, key string) (Bucket, bool, error) {
	vals, err := s.redis.HMGet(ctx, s.key(key), "count", "start", "lock", "strikes").Result()
	if err != nil {
		return Bucket{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 4 || vals[0] == nil {
		return Bucket{}, false, nil
	}

	return Bucket{
		Count:     int(parseInt(vals[0])),
		Start:     time.UnixMilli(parseInt(vals[1])),
		LockUntil: time.UnixMilli(parseInt(vals[2])),
		Strikes:   int(parseInt(vals[3])),
	}, true, nil
}

// Delete removes a bucket.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func parseInt(v interface{}) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
