package redis

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of one Throttle call.
type Decision struct {
	Allowed bool
	Count   int64
	// RetryAfter is the time left in the current window. Zero when unknown.
	RetryAfter time.Duration
}

// Throttle counts one hit against a fixed window keyed by parts and reports
// whether the caller is still within limit. The window starts on the first hit.
func (c *Client) Throttle(ctx context.Context, limit int64, window time.Duration, parts ...string) (Decision, error) {
	if c.cmd == nil {
		return Decision{}, errNotConnected
	}
	key := c.keys.Throttle(parts...)
	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("incr %s: %w", key, err)
	}
	decision := Decision{Allowed: count <= limit, Count: count}
	if count == 1 {
		if err := c.cmd.Expire(ctx, key, window).Err(); err != nil {
			return decision, fmt.Errorf("expire %s: %w", key, err)
		}
		decision.RetryAfter = window
		return decision, nil
	}
	if !decision.Allowed {
		if ttl, err := c.cmd.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
			decision.RetryAfter = ttl
		}
	}
	return decision, nil
}
