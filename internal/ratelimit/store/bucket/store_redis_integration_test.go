//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"algodid/internal/ratelimit/store/bucket"
	"algodid/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = bucket.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestAllowUpToLimit() {
	ctx := context.Background()
	for i := range 3 {
		result, err := s.store.Allow(ctx, "ratelimit:ip:10.0.0.1:write", 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}

	result, err := s.store.Allow(ctx, "ratelimit:ip:10.0.0.1:write", 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)

	count, err := s.store.GetCurrentCount(ctx, "ratelimit:ip:10.0.0.1:write")
	s.Require().NoError(err)
	s.Equal(3, count)
}

func (s *RedisStoreSuite) TestWindowExpires() {
	ctx := context.Background()
	key := "ratelimit:ip:10.0.0.2:write"
	_, err := s.store.Allow(ctx, key, 1, 200*time.Millisecond)
	s.Require().NoError(err)

	time.Sleep(300 * time.Millisecond)
	result, err := s.store.Allow(ctx, key, 1, 200*time.Millisecond)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisStoreSuite) TestReset() {
	ctx := context.Background()
	key := "ratelimit:ip:10.0.0.3:write"
	_, err := s.store.Allow(ctx, key, 1, time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Reset(ctx, key))
	result, err := s.store.Allow(ctx, key, 1, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

// TestConcurrentAllow verifies the limit holds under concurrent callers.
func (s *RedisStoreSuite) TestConcurrentAllow() {
	ctx := context.Background()
	const (
		limit      = 10
		goroutines = 50
	)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for range goroutines {
		wg.Go(func() {
			result, err := s.store.Allow(ctx, "concurrent-test", limit, time.Minute)
			if err == nil && result.Allowed {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()
	s.Equal(int32(limit), allowed.Load())
}
