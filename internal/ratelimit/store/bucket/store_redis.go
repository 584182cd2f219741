package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"algodid/internal/ratelimit/models"
)

// allowScript trims the window, then records the request if there is room.
// It returns {allowed, count, oldest_ms}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestMs = now
if oldest[2] then
  oldestMs = tonumber(oldest[2])
end
return {allowed, count, oldestMs}
`)

// RedisBucketStore implements BucketStore on a sorted set per key, so every
// instance behind a load balancer shares the same windows.
type RedisBucketStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedis creates a store on client.
func NewRedis(client redis.UniversalClient) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

// Allow checks if a request is allowed and records it atomically.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	nowMs := now.UnixMilli()
	res, err := allowScript.Run(ctx, s.client, []string{key},
		nowMs, window.Milliseconds(), limit, strconv.FormatInt(nowMs, 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("redis sliding window: unexpected reply %v", res)
	}

	count := int(res[1])
	resetAt := time.UnixMilli(res[2]).Add(window)
	if res[0] == 1 {
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     limit,
			Remaining: max(limit-count, 0),
			ResetAt:   resetAt,
		}, nil
	}
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		ResetAt:    resetAt,
		RetryAfter: retryAfter(resetAt.Sub(now)),
	}, nil
}

// Reset clears the rate limit counter for a key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis reset %s: %w", key, err)
	}
	return nil
}

// GetCurrentCount returns the number of requests recorded in the key's
// window. Entries that already left the window are trimmed on the next Allow.
func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count %s: %w", key, err)
	}
	return int(n), nil
}
