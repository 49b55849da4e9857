package httpmiddleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// CooldownLimiter throttles repeated mutating actions from the same client.
// Unlike the sliding window rate limiter it enforces a fixed quiet period
// between consecutive invocations of a named action, so double-clicks and
// scripted bursts collapse into one effective request.
type CooldownLimiter struct {
	keyFunc func(*http.Request) string

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldownLimiter creates a CooldownLimiter. keyFunc identifies the
// client; when nil the client IP is used.
func NewCooldownLimiter(keyFunc func(*http.Request) string) *CooldownLimiter {
	if keyFunc == nil {
		keyFunc = defaultKeyFunc
	}
	return &CooldownLimiter{
		keyFunc: keyFunc,
		last:    make(map[string]time.Time),
	}
}

// Limit returns a middleware enforcing a quiet period of d between
// invocations of the named action by the same client. Requests arriving
// inside the window get 429 with a Retry-After header.
func (cl *CooldownLimiter) Limit(action string, d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := action + "\x00" + cl.keyFunc(r)
			now := time.Now()

			cl.mu.Lock()
			prev, seen := cl.last[key]
			blocked := seen && now.Sub(prev) < d
			if !blocked {
				cl.last[key] = now
			}
			cl.mu.Unlock()

			if blocked {
				writeTooManyRequests(w, d-now.Sub(prev), "please wait before retrying")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// StartCleanup launches a background goroutine that evicts stale entries
// every interval. Entries older than maxAge are removed. The goroutine
// stops when ctx is cancelled.
func (cl *CooldownLimiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				cl.mu.Lock()
				for key, t := range cl.last {
					if now.Sub(t) >= maxAge {
						delete(cl.last, key)
					}
				}
				cl.mu.Unlock()
			}
		}
	}()
}
