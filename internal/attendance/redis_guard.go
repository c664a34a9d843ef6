package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "attendance:lock:"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard is a cross-process guard built on SET NX with expiry.
type RedisGuard struct {
	rdb   *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
	log   zerolog.Logger
}

// NewRedisGuard creates a guard on an existing client.
func NewRedisGuard(rdb *redis.Client, log zerolog.Logger) *RedisGuard {
	return &RedisGuard{
		rdb:   rdb,
		ttl:   constants.LockTTL,
		wait:  constants.LockWait,
		retry: constants.LockRetryInterval,
		log:   log,
	}
}

// NewRedisClient parses a redis URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")

	return rdb, nil
}

// Lock acquires the key or fails with ErrLockTimeout after the wait period.
func (g *RedisGuard) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(g.wait)

	for {
		ok, err := g.rdb.SetNX(ctx, redisKey, token, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.retry):
		}
	}

	return func() {
		// Release even if the caller's context is already done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), g.ttl)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.rdb, []string{redisKey}, token).Err(); err != nil {
			g.log.Warn().Err(err).Str("key", key).Msg("failed to release attendance lock")
		}
	}, nil
}
