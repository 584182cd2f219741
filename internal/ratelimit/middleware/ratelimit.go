package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"algodid/internal/ratelimit/metrics"
	"algodid/internal/ratelimit/models"
	"algodid/internal/ratelimit/ports"
	"algodid/internal/ratelimit/store/bucket"
	"algodid/pkg/platform/audit"
	"algodid/pkg/platform/circuit"
	"algodid/pkg/platform/httputil"
	"algodid/pkg/requestcontext"
)

// DefaultLimits apply when no explicit limit is configured for a class.
var DefaultLimits = map[models.EndpointClass]models.Limit{
	models.ClassWrite: {RequestsPerWindow: 20, Window: time.Minute},
	models.ClassRead:  {RequestsPerWindow: 300, Window: time.Minute},
}

// Middleware throttles requests per client IP. Checks go to the shared
// store; while it fails, a circuit breaker routes them to an in-memory
// fallback so limits keep applying per instance.
type Middleware struct {
	store    ports.BucketStore
	fallback ports.BucketStore
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
	audit    ports.AuditPublisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithLimit overrides the limit of one endpoint class.
func WithLimit(class models.EndpointClass, limit models.Limit) Option {
	return func(m *Middleware) {
		if limit.RequestsPerWindow > 0 && limit.Window > 0 {
			m.limits[class] = limit
		}
	}
}

// WithFallback sets the store used while the circuit is open.
func WithFallback(store ports.BucketStore) Option {
	return func(m *Middleware) {
		m.fallback = store
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(m *Middleware) {
		m.audit = p
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(store ports.BucketStore, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:    store,
		fallback: bucket.NewInMemoryBucketStore(),
		breaker:  circuit.New("ratelimit"),
		limits:   make(map[models.EndpointClass]models.Limit, len(DefaultLimits)),
		logger:   logger,
	}
	for class, limit := range DefaultLimits {
		m.limits[class] = limit
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit returns middleware enforcing the limit of class.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result, degraded, err := m.check(ctx, models.NewIPRateLimitKey(ip, class), m.limits[class])
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}

			if !result.Allowed {
				m.metrics.IncrementExceeded(string(class))
				m.emitExceeded(ctx, class)
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// check consults the shared store and falls back to memory while the
// breaker is open. degraded reports a fallback answer.
func (m *Middleware) check(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, bool, error) {
	result, err := m.store.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	if err == nil {
		usePrimary, change := m.breaker.RecordSuccess()
		if change.Closed {
			m.logger.InfoContext(ctx, "rate limit store recovered")
			m.metrics.SetCircuitOpen(false)
		}
		if usePrimary {
			return result, false, nil
		}
	} else {
		m.metrics.IncrementStoreErrors()
		_, change := m.breaker.RecordFailure()
		if change.Opened {
			m.logger.WarnContext(ctx, "rate limit store failing, using in-memory fallback", "error", err)
			m.metrics.SetCircuitOpen(true)
		}
		if m.fallback == nil {
			return nil, false, err
		}
	}

	m.metrics.IncrementDegraded()
	result, err = m.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	return result, true, err
}

func (m *Middleware) emitExceeded(ctx context.Context, class models.EndpointClass) {
	if m.audit == nil {
		return
	}
	err := m.audit.Emit(ctx, audit.Event{
		Action:    string(audit.EventRateLimitExceeded),
		RequestID: requestcontext.RequestID(ctx),
		Reason:    string(class),
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to emit rate limit audit event", "error", err)
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limited",
		Message:    "Too many requests from this IP address. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
