package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set of hit timestamps.
// KEYS[1] = key
// ARGV[1] = now_ms
// ARGV[2] = window_ms
// ARGV[3] = limit
// ARGV[4] = member (unique)
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, 'NX', now, member)
local count = redis.call('ZCARD', key)
redis.call('PEXPIRE', key, window)

if count > limit then
  local earliest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local earliestScore = tonumber(earliest[2]) or (now - window)
  local retry_ms = window - (now - earliestScore)
  if retry_ms < 0 then retry_ms = 0 end
  return {0, count, retry_ms}
end
return {1, count, 0}
`)

// Limiter caps operator-triggered work, such as manual reconcile runs, per
// scope and id across every process.
type Limiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

// Allow records one hit for id. When the window is full it reports how long
// until the oldest hit leaves it.
func (l *Limiter) Allow(ctx context.Context, id string) (allowed bool, retryAfter time.Duration, err error) {
	res, err := slidingWindowScript.Run(
		ctx,
		l.rdb,
		[]string{KeyRateLimit(l.scope, id)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, err
	}

	if len(res) != 3 {
		return false, 0, fmt.Errorf("bad script result: %v", res)
	}

	return res[0] == 1, time.Duration(res[2]) * time.Millisecond, nil
}
