package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, then admits the hit when there is room.
// Returns {allowed, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2])}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisStore keeps each window in a sorted set so limits hold across replicas.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL (e.g. redis://localhost:6379/0).
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opts), prefix: "civiclens:ratelimit:"}, nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Allow implements Store.
func (s *RedisStore) Allow(ctx context.Context, key string, bucket Bucket, now time.Time) (bool, time.Duration, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(now.UnixNano(), 10)

	res, err := slidingWindowScript.Run(ctx, s.rdb,
		[]string{s.prefix + key},
		nowMs, bucket.Window.Milliseconds(), bucket.MaxRequests, member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	retry := time.Duration(res[1]+bucket.Window.Milliseconds()-nowMs) * time.Millisecond
	return false, retry, nil
}
