package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// submitLockPrefix guards a request while a letter is being sent.
const submitLockPrefix = "submit:lock:"

// releaseLockScript deletes the lock only while it still holds our token.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// AcquireSubmitLock takes the per-request send lock. ok is false if another
// attempt holds it. The returned token releases the lock.
func (c *Cache) AcquireSubmitLock(ctx context.Context, requestID string, ttl time.Duration) (string, bool, error) {
	token := ulid.Make().String()
	ok, err := c.client.SetNX(ctx, submitLockPrefix+requestID, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseSubmitLock drops the send lock if token still owns it. A lock that
// expired and was taken by another attempt is left alone.
func (c *Cache) ReleaseSubmitLock(ctx context.Context, requestID, token string) error {
	if err := releaseLockScript.Run(ctx, c.client, []string{submitLockPrefix + requestID}, token).Err(); err != nil {
		return fmt.Errorf("release submit lock: %w", err)
	}
	return nil
}
