package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when this holder still owns it, so
// a lock that expired and was re-acquired elsewhere is never released by the
// stale holder.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker is a SessionLocker backed by Redis SET NX, for deployments
// running more than one API instance against the same database.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

// NewRedisLocker creates a Redis-backed session locker. The TTL bounds how
// long a crashed holder can wedge a session.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if client == nil {
		panic("locker: redis client required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 25 * time.Millisecond,
	}
}

func (l *RedisLocker) key(sessionID int64) string {
	return fmt.Sprintf("opd:session-lock:%d", sessionID)
}

// Lock acquires the session lock, polling until acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, sessionID int64) (func(), error) {
	key := l.key(sessionID)
	owner := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("locker: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// Release uses a background context: the operation's context may
		// already be cancelled, but the lock must still be freed.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.client.Eval(ctx, releaseScript, []string{key}, owner).Err()
	}, nil
}

var _ SessionLocker = (*RedisLocker)(nil)
