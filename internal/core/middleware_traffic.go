package core

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"scormrelay/internal/types"
)

// Throttle limits requests per client IP under the given key prefix. It is
// applied per route (the login endpoint) rather than globally.
//
// If no RateLimitStore is configured the middleware passes through. Store
// errors fail open so that a Redis outage never locks the admin out.
//
// Every counted response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected ones also carry Retry-After.
func (s *Server) Throttle(prefix string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.RateLimitStore == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := extractClientIP(r)
			result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), prefix+":"+ip, limit, window)
			if err != nil {
				s.Logger.ErrorContext(r.Context(), "rate limit store error",
					slog.String("key_prefix", prefix),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, limit, result)

			if !result.Allowed {
				s.Logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("key_prefix", prefix),
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)

				retryAfter := int(time.Until(result.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
					Error: ErrorDetail{
						Code:      string(types.ErrCodeRateLimit),
						Message:   "Too many attempts. Please retry after the reset time.",
						RequestID: types.GetRequestID(r.Context()),
					},
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
