package core

import (
	"context"
	"time"

	"scormrelay/internal/ratelimit"
	"scormrelay/internal/types"
)

// Authenticator decouples the HTTP layer from the token mechanism.
type Authenticator interface {
	// ResolveToken returns the Actor for a bearer token.
	//
	// Distinct error codes:
	// - ErrCodeAuthTokenInvalid if the token is malformed or not signed by us.
	// - ErrCodeAuthTokenExpired if the token is valid but expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RateLimitStore abstracts the backing store for rate limiting.
// Production uses Redis; single-instance deployments use memory.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key and checks
	// it against limit within the current window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult = ratelimit.Result

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	// RecordRequest records latency and count for one request. endpoint is
	// the route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}
