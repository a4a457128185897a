// Package limiter defines the request rate limiter and its backends.
package limiter

import (
	"context"
	"time"
)

// Limiter admits at most a fixed number of requests per key in a time window.
type Limiter interface {
	// Allow records one request for key and reports whether it is admitted, with a retry-after hint when not.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Nop admits everything.
type Nop struct{}

// Allow always admits.
func (Nop) Allow(context.Context, string) (bool, time.Duration, error) { return true, 0, nil }
