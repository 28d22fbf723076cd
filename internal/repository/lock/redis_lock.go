package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a Locker shared by every replica pointed at the same Redis.
// The TTL bounds how long a crashed holder can block later runs.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisLock(client redis.UniversalClient, key string, ttl time.Duration, logger zerolog.Logger) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With().Str("component", "RedisLock").Logger(),
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		l.logger.Error().Ctx(ctx).Err(err).Str("key", l.key).Msg("lock acquire failed")
		return nil, fmt.Errorf("acquire redis lock: %w", err)
	}
	if !ok {
		l.logger.Info().Ctx(ctx).Str("key", l.key).Msg("lock held by another run")
		return nil, ErrHeld
	}

	l.logger.Debug().Ctx(ctx).Str("key", l.key).Dur("ttl", l.ttl).Msg("lock acquired")

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Error().Err(err).Str("key", l.key).Msg("lock release failed")
			return
		}
		l.logger.Debug().Str("key", l.key).Msg("lock released")
	}
	return release, nil
}
