package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLocked = errors.New("resource is locked")

// unlockScript deletes the key only while it still holds the caller's token,
// so an expired lock taken over by someone else is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Cache struct {
	client redis.UniversalClient
	prefix string
}

func NewCache(client redis.UniversalClient) *Cache {
	return &Cache{client: client, prefix: "assistantkb:"}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Lock takes an exclusive lock on name for ttl. It returns ErrLocked if the
// lock is already held.
func (c *Cache) Lock(ctx context.Context, name, token string, ttl time.Duration) error {
	ok, err := c.client.SetNX(ctx, c.lockKey(name), token, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("acquire lock %s: %w", name, ErrLocked)
	}
	return nil
}

// Unlock releases the lock if it is still held with token.
func (c *Cache) Unlock(ctx context.Context, name, token string) error {
	if err := unlockScript.Run(ctx, c.client, []string{c.lockKey(name)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

func (c *Cache) lockKey(name string) string {
	return c.prefix + "lock:" + name
}

// SourceLock names the ingestion lock of a source.
func SourceLock(sourceID string) string {
	return "source:" + sourceID
}
