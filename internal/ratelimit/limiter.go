package ratelimit

import (
	"context"
	"time"
)

// Limiter throttles requests per client key. Allow reports whether the
// request fits the budget; when it does not, retryAfter hints how long
// the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}
