// Package ratelimit provides fixed-window counters for the login throttle.
package ratelimit

import (
	"time"
)

// Result is the outcome of one counted request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

func result(count int64, limit int, resetAt time.Time) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
