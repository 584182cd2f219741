package models

import (
	"strings"
	"time"
)

// EndpointClass groups endpoints that share a limit.
type EndpointClass string

const (
	// ClassWrite covers fee-bearing ledger writes: create, upload, update, delete.
	ClassWrite EndpointClass = "write"
	// ClassRead covers resolution.
	ClassRead EndpointClass = "read"
)

// IsValid checks if the endpoint class is one of the supported values.
func (c EndpointClass) IsValid() bool {
	return c == ClassWrite || c == ClassRead
}

// Limit is a number of requests allowed per sliding window.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// SanitizeKeySegment escapes the key delimiter so a client-controlled
// segment cannot spill into an adjacent one.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

// NewIPRateLimitKey builds the bucket key for a client IP and class.
func NewIPRateLimitKey(ip string, class EndpointClass) string {
	return "ratelimit:ip:" + SanitizeKeySegment(ip) + ":" + string(class)
}
