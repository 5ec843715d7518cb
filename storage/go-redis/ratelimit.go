package goredis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/interactive-solutions/go-intake"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// slidingWindow drops hits older than the window, then records the new hit
// only when the caller is still under the limit. Scores are milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) >= limit then
	return 0
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)

return 1
`)

// rateLimiter shares its counters between every process using the same redis.
type rateLimiter struct {
	client redis.Scripter
	prefix string

	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) intake.RateLimiter {
	return &rateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *rateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := slidingWindow.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.now().UnixNano()/int64(time.Millisecond),
		l.window.Milliseconds(),
		l.limit,
		uuid.New().String(),
	).Int()
	if err != nil {
		return false, errors.Wrapf(err, "Failed to check rate limit for %s", key)
	}

	return allowed == 1, nil
}
