package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func stateKey(ref string) string {
	return "state:" + ref
}

// AcquireStateLock marks a ticket state reference as being submitted by owner. Only one
// submitter holds a given reference until release or ttl.
func (c *Cache) AcquireStateLock(ctx context.Context, ref, owner string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, stateKey(ref), owner, ttl).Result()
}

var releaseStateScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ReleaseStateLock deletes the lock only if owner still holds it.
func (c *Cache) ReleaseStateLock(ctx context.Context, ref, owner string) error {
	return releaseStateScript.Run(ctx, c.client, []string{stateKey(ref)}, owner).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
