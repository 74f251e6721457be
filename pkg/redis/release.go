package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseIfOwner deletes key when its value is owner. It reports whether the
// key was removed; a key that expired or changed hands is left alone.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	if c.cmd == nil {
		return false, errNotConnected
	}
	n, err := releaseScript.Run(ctx, c.cmd, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
