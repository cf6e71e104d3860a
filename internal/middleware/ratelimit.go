// Package middleware holds HTTP middleware that is not tied to observability.
package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/linkreach/linkreach/internal/observability"
)

const (
	staleClientAge     = 10 * time.Minute
	staleClientPruning = 5 * time.Minute
)

type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client. Zero or less
	// disables limiting.
	RequestsPerSecond float64
	Burst             int
	// Now overrides time.Now, mainly for tests.
	Now func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client token bucket keyed by the remote address
// and answers 429 once a client runs out of tokens.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var (
		mu         sync.Mutex
		clients    = map[string]*clientLimiter{}
		lastPruned = now()
	)
	getLimiter := func(ip string, at time.Time) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if at.Sub(lastPruned) > staleClientPruning {
			for key, client := range clients {
				if at.Sub(client.lastSeen) > staleClientAge {
					delete(clients, key)
				}
			}
			lastPruned = at
		}
		client, ok := clients[ip]
		if !ok {
			client = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			clients[ip] = client
		}
		client.lastSeen = at
		return client.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			at := now()
			limiter := getLimiter(clientIP(r), at)

			reservation := limiter.ReserveN(at, 1)
			if !reservation.OK() {
				writeTooManyRequests(w, r, 0)
				return
			}
			if delay := reservation.DelayFrom(at); delay > 0 {
				reservation.CancelAt(at)
				writeTooManyRequests(w, r, int(delay.Seconds())+1)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.TokensAt(at))))
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP uses RemoteAddr only; forwarded headers are client controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"detail":     "rate limit exceeded",
		"error_code": "RATE_LIMITED",
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
