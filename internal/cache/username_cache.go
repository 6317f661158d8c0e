package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	usernameKeyPrefix    = "ticketdesk:username:"
	invalidatedKeyPrefix = "ticketdesk:username-invalidated:"

	// DefaultInvalidationHold outlives the longest request, so a lookup that
	// read a user before it was renamed or deleted cannot write it back.
	DefaultInvalidationHold = time.Minute
)

// UsernameCache maps user ids to usernames for the ticket list join.
//
// Invalidate must block Set for the same id for a while, since a reader may
// have loaded the old username just before the change.
type UsernameCache interface {
	Get(ctx context.Context, userID string) (string, bool, error)
	Set(ctx context.Context, userID, username string) error
	Invalidate(ctx context.Context, userID string) error
}

// setUnlessInvalidated writes KEYS[1] only when KEYS[2] is absent.
// ARGV[2] is the ttl in milliseconds, 0 for none.
var setUnlessInvalidated = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return 0
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisUsernameCache stores usernames as plain string keys with a TTL.
type RedisUsernameCache struct {
	client redis.Cmdable
	ttl    time.Duration
	hold   time.Duration
}

// NewRedisUsernameCache builds a cache on top of an existing client. A zero
// ttl keeps entries until they are invalidated.
func NewRedisUsernameCache(client redis.Cmdable, ttl time.Duration) *RedisUsernameCache {
	return &RedisUsernameCache{client: client, ttl: ttl, hold: DefaultInvalidationHold}
}

func (c *RedisUsernameCache) Get(ctx context.Context, userID string) (string, bool, error) {
	val, err := c.client.Get(ctx, usernameKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set is skipped while the id carries an invalidation marker.
func (c *RedisUsernameCache) Set(ctx context.Context, userID, username string) error {
	keys := []string{usernameKey(userID), invalidatedKey(userID)}
	return setUnlessInvalidated.Run(ctx, c.client, keys, username, c.ttl.Milliseconds()).Err()
}

// Invalidate drops the entry and marks the id for the hold period in one
// transaction.
func (c *RedisUsernameCache) Invalidate(ctx context.Context, userID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, invalidatedKey(userID), "1", c.hold)
		pipe.Del(ctx, usernameKey(userID))
		return nil
	})
	return err
}

func usernameKey(userID string) string {
	return usernameKeyPrefix + userID
}

func invalidatedKey(userID string) string {
	return invalidatedKeyPrefix + userID
}

// NopUsernameCache never hits; every lookup goes to the store.
type NopUsernameCache struct{}

func (NopUsernameCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (NopUsernameCache) Set(context.Context, string, string) error         { return nil }
func (NopUsernameCache) Invalidate(context.Context, string) error          { return nil }
