package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"scormrelay/internal/types"
)

// SecurityHeadersMiddleware sets standard security headers on every response.
func (s *Server) SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// RequireBasicAuth protects a route with HTTP basic credentials. SCORM Cloud
// sends them on postbacks when ApiRollupRegistrationAuthType is httpbasic.
// An empty username disables the check.
func (s *Server) RequireBasicAuth(username string, password types.SecretString) func(http.Handler) http.Handler {
	if username == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	wantUser := sha256.Sum256([]byte(username))
	wantPass := sha256.Sum256([]byte(password.Unmask()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			gotUser := sha256.Sum256([]byte(user))
			gotPass := sha256.Sum256([]byte(pass))

			userOK := subtle.ConstantTimeCompare(gotUser[:], wantUser[:]) == 1
			passOK := subtle.ConstantTimeCompare(gotPass[:], wantPass[:]) == 1
			if !ok || !userOK || !passOK {
				s.Logger.WarnContext(r.Context(), "basic auth rejected",
					slog.String("path", r.URL.Path),
					slog.String("ip", extractClientIP(r)),
				)
				w.Header().Set("WWW-Authenticate", `Basic realm="scorm-postback"`)
				JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
					Error: ErrorDetail{
						Code:      string(types.ErrCodeAuthPostbackDenied),
						Message:   "Invalid postback credentials",
						RequestID: types.GetRequestID(r.Context()),
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP returns the first X-Forwarded-For entry, or RemoteAddr
// without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
