package ratelimit

import "context"

// Limiter answers whether one more event is allowed for a key right now.
// Injected rather than kept as a process-global map so limits survive
// restarts and hold across multiple server instances.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
