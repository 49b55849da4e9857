package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the request budget per window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc derives the limiter key from a request. Nil means
	// the client IP.
	KeyFunc func(*http.Request) string
}

// window holds per-key counters. carry is the count of the window that
// just rotated out; it still contributes a weighted share to the total
// until a full window has passed.
type window struct {
	start time.Time
	count float64
	carry float64
}

type slidingWindow struct {
	max     float64
	span    time.Duration
	mu      sync.Mutex
	byKey   map[string]*window
	keyFunc func(*http.Request) string
}

func newSlidingWindow(cfg RateLimitConfig) *slidingWindow {
	kf := cfg.KeyFunc
	if kf == nil {
		kf = defaultKeyFunc
	}
	return &slidingWindow{
		max:     float64(cfg.Max),
		span:    cfg.Window,
		byKey:   make(map[string]*window),
		keyFunc: kf,
	}
}

// take consumes one unit of budget for key if any is left. The weighted
// total counts the whole current window plus the rotated-out window
// scaled by how much of it still overlaps the sliding span.
func (sw *slidingWindow) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	win := sw.byKey[key]
	if win == nil {
		win = &window{start: now}
		sw.byKey[key] = win
	}

	if age := now.Sub(win.start); age >= sw.span {
		win.carry = win.count
		if age >= 2*sw.span {
			win.carry = 0
		}
		win.count = 0
		win.start = now.Truncate(sw.span)
	}

	frac := now.Sub(win.start).Seconds() / sw.span.Seconds()
	if frac > 1 {
		frac = 1
	}
	total := win.carry*(1-frac) + win.count
	resetAt = win.start.Add(sw.span)

	if total >= sw.max {
		return 0, resetAt, false
	}
	win.count++

	remaining = int(sw.max - total - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// evictStale drops keys idle for two full windows.
func (sw *slidingWindow) evictStale(now time.Time) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	for key, win := range sw.byKey {
		if now.Sub(win.start) >= 2*sw.span {
			delete(sw.byKey, key)
		}
	}
}

func (sw *slidingWindow) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := sw.take(sw.keyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(int(sw.max)))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				writeTooManyRequests(w, time.Until(resetAt), "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit returns a middleware enforcing a per-key sliding window rate
// limit. Requests over the budget get 429 with a JSON body; every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset headers.
//
// Stale keys are never evicted; use RateLimitWithCleanup for servers
// with an unbounded client population.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newSlidingWindow(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that
// evicts idle keys every two window lengths until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	sw := newSlidingWindow(cfg)
	go func() {
		ticker := time.NewTicker(2 * sw.span)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				sw.evictStale(now)
			}
		}
	}()
	return sw.middleware()
}

// writeTooManyRequests sends a 429 with a Retry-After header and a JSON
// error body. Shared by the rate limiter and the cooldown limiter.
func writeTooManyRequests(w http.ResponseWriter, retryAfter time.Duration, message string) {
	if retryAfter < 0 {
		retryAfter = 0
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusTooManyRequests,
		"message": message,
	})
}

// defaultKeyFunc resolves the client IP: first X-Forwarded-For entry,
// then X-Real-IP, then the host part of RemoteAddr.
func defaultKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
