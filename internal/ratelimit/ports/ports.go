// Package ports defines the interfaces the ratelimit module consumes.
package ports

import (
	"context"
	"time"

	"algodid/internal/ratelimit/models"
	"algodid/pkg/platform/audit"
)

// AuditPublisher emits audit events for throttled requests.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// BucketStore manages sliding window rate limit counters.
type BucketStore interface {
	// Allow checks if a single request is allowed and consumes one slot if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)

	// Reset clears the rate limit counter for a key.
	Reset(ctx context.Context, key string) error

	// GetCurrentCount returns the current request count in the window.
	GetCurrentCount(ctx context.Context, key string) (int, error)
}
