package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/flicker/match-app/internal/metrics"
)

// KeyFunc picks the identity a request is limited by. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// ByIP keys requests by client address. Mount it after chi's RealIP.
func ByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByHeader keys requests by the value of header.
func ByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// Middleware rejects requests over rule with 429 and a Retry-After header.
// A nil limiter lets everything through.
func Middleware(l *Limiter, rule Rule, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := key(r)
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, _ := l.Allow(r.Context(), id, rule)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RateLimitedTotal.WithLabelValues(rule.Name).Inc()
			retry := l.RetryAfter(r.Context(), id, rule)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"message": "too many requests",
			})
		})
	}
}
