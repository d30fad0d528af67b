package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kirinyoku/matchseats/internal/domain"
)

// Cache holds read-mostly views such as confirmed listings. Confirmations
// are never retracted, so dropping a key on every new confirmation keeps it
// exact.
type Cache struct {
	rdb    *redis.Client
	sf     singleflight.Group
	logger *zap.Logger
}

func NewCache(client *redis.Client, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{rdb: client, logger: logger}
}

func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return s, true, nil
}

func (c *Cache) SetString(
	ctx context.Context,
	key string,
	val string,
	ttl time.Duration,
) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.rdb.Del(ctx, keys...).Err()
}

func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}

	return out, true, nil
}

func SetJSON(
	ctx context.Context,
	c *Cache,
	key string,
	val any,
	ttl time.Duration,
) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.SetString(ctx, key, string(b), ttl)
}

// GetOrSetJSON returns the cached value or loads, stores and returns it.
// Concurrent misses on one key share a single load. A redis read failure
// falls through to the loader.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok, err := GetJSON[T](ctx, c, key); err == nil && ok {
		return v, nil
	} else if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if err := SetJSON(ctx, c, key, v, ttl); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, errors.New("type assertion failed")
	}

	return v, nil
}

// setIfGenScript stores a value only while the generation counter still
// holds the value read before loading it.
// KEYS[1] = key
// KEYS[2] = generation key
// ARGV[1] = generation seen by the loader
// ARGV[2] = value
// ARGV[3] = ttl_ms (0 keeps the key without expiry)
var setIfGenScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// ConfirmedListing returns the cached confirmed listing of a match or loads
// it. A listing loaded before an invalidation is returned but not stored, so
// an invalidation that lands while the load runs is never undone.
func (c *Cache) ConfirmedListing(
	ctx context.Context,
	matchID int64,
	ttl time.Duration,
	loader func(ctx context.Context) ([]domain.ConfirmedReservation, error),
) ([]domain.ConfirmedReservation, error) {
	key := KeyConfirmed(matchID)

	if v, ok, err := GetJSON[[]domain.ConfirmedReservation](ctx, c, key); err == nil && ok {
		return v, nil
	} else if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		gen, genErr := c.rdb.Get(ctx, KeyConfirmedGen(matchID)).Result()
		if errors.Is(genErr, redis.Nil) {
			gen, genErr = "0", nil
		}

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		if genErr != nil {
			c.logger.Warn("cache generation read failed", zap.String("key", key), zap.Error(genErr))
			return v, nil
		}

		b, err := json.Marshal(v)
		if err != nil {
			return v, nil
		}

		if err := setIfGenScript.Run(
			ctx,
			c.rdb,
			[]string{key, KeyConfirmedGen(matchID)},
			gen, string(b), ttl.Milliseconds(),
		).Err(); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}

		return v, nil
	})
	if err != nil {
		return nil, err
	}

	return vAny.([]domain.ConfirmedReservation), nil
}

// InvalidateMatch drops the listing and bumps its generation, so loads that
// started earlier do not store their result.
func (c *Cache) InvalidateMatch(ctx context.Context, matchID int64) error {
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, KeyConfirmedGen(matchID))
	pipe.Del(ctx, KeyConfirmed(matchID))
	_, err := pipe.Exec(ctx)
	return err
}

// Confirmed drops the cached listing of a match after new confirmations.
func (c *Cache) Confirmed(ctx context.Context, matchID int64, _ []domain.ConfirmedReservation) {
	if err := c.InvalidateMatch(context.WithoutCancel(ctx), matchID); err != nil {
		c.logger.Warn("invalidate confirmed listing failed",
			zap.Int64("match_id", matchID),
			zap.Error(err),
		)
	}
}
