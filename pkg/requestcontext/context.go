// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services and loggers read them.
//
//	requestID := requestcontext.RequestID(ctx)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import "context"

type (
	requestIDKey struct{}
	clientIPKey  struct{}
)

// RequestID retrieves the request correlation id from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request correlation id into a context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientIP injects the client IP address into a context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}
