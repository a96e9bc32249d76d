// internal/delivery/redis_lock.go
package delivery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solatis/campaignkeeper/internal/types"
)

/*
 * RedisLocker serializes receipts for one message across API instances.
 *
 * SET key token NX PX ttl acquires; a Lua compare-and-delete releases, so an
 * instance whose lock expired cannot delete a lock another instance now owns.
 * Acquisition polls with capped exponential backoff until ctx ends.
 *
 * The TTL bounds how long a crashed holder blocks a message. It must exceed
 * one load-apply-store cycle; the optimistic version check in the store
 * covers the rare case where it does not.
 */

const (
	redisLockPrefix     = "campaignkeeper:lock:msg:"
	redisPollInitial    = 5 * time.Millisecond
	redisPollMax        = 200 * time.Millisecond
	defaultRedisLockTTL = 10 * time.Second
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a Locker backed by Redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker; ttl <= 0 uses 10s.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultRedisLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger.With("component", "redis_lock")}
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisLockPrefix + key
	token, err := newLockToken()
	if err != nil {
		return nil, err
	}

	wait := redisPollInitial
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %s: %w", types.ErrLockTimeout, key, ctxErr)
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", types.ErrLockTimeout, key, ctx.Err())
		case <-timer.C:
		}
		wait = min(wait*2, redisPollMax)
	}

	return func() {
		// Release on a fresh context: the caller's may already be done.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("failed to release message lock", "key", redisKey, "error", err)
		}
	}, nil
}

func newLockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
