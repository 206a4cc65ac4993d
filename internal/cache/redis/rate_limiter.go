package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const waitPollInterval = 50 * time.Millisecond

// Fallback venue budget when the caller passes a zero limit or window. The
// default must clear one full detection tick (every symbol's funding, spot,
// and contract fetches per venue) well inside the fetch timeout.
const (
	defaultVenueLimit  = 20
	defaultVenueWindow = time.Second
)

// RateLimiter implements domain.RateLimiter using a sliding-window approach
// backed by Redis sorted sets and an atomic Lua script. The limit and window
// given at construction are the per-key budget Wait enforces; Allow takes
// explicit parameters so the HTTP middleware can run its own budget through
// the same script.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	limit         int
	window        time.Duration
}

// NewRateLimiter creates a RateLimiter backed by the given Client. limit and
// window define the budget Wait enforces per key; non-positive values fall
// back to the package defaults.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = defaultVenueLimit
	}
	if window <= 0 {
		window = defaultVenueWindow
	}
	return &RateLimiter{
		rdb:           c.rdb,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limit:         limit,
		window:        window,
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow checks whether a request for the given key is permitted under the
// sliding window rate limit. It returns true if the request is allowed (and
// the request is counted), or false if the limit has been reached.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()
	windowMicro := window.Microseconds()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		now,
		windowMicro,
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Wait blocks until a request for the given key is admitted under the
// configured limit and window, polling at a fixed interval. It returns an
// error if the context is cancelled first.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	err := waitAllow(ctx, func(ctx context.Context) (bool, error) {
		return rl.Allow(ctx, key, rl.limit, rl.window)
	})
	if err != nil {
		return fmt.Errorf("redis: rate limit wait %s: %w", key, err)
	}
	return nil
}

// waitAllow polls allow until it admits the request or the context ends.
func waitAllow(ctx context.Context, allow func(context.Context) (bool, error)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allowed, err := allow(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
