package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCount returns a liveness CheckFunc that fails once the goroutine
// count exceeds limit, catching notifier and cleanup goroutine leaks.
func GoroutineCount(limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// Pinger is satisfied by pgxpool.Pool and database/sql.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a readiness CheckFunc that pings p.
func Ping(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}
