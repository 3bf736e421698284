package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/peppermint/listing-service/internal/platform/clock"
	"github.com/peppermint/listing-service/internal/service"
	"github.com/redis/go-redis/v9"
)

const admissionKeyPrefix = "admission:"

// slidingWindowScript trims aged entries, counts the window and records the
// request in one atomic step so concurrent creations from the same actor
// cannot lose updates. A denied request adds nothing.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local cutoff = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)
local count = redis.call('ZCARD', key)
if count >= limit then
  return {0, 0}
end
redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
redis.call('PEXPIRE', key, ttl)
return {1, limit - count - 1}
`)

type slidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	clock  clock.Clock
}

// NewRateLimiter returns the shared sliding-window admission control, keyed
// per actor, stored in a redis sorted set.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, clk clock.Clock) service.AdmissionControl {
	if limit <= 0 {
		limit = service.DefaultAdmissionLimit
	}
	if window <= 0 {
		window = service.DefaultAdmissionWindow
	}
	return &slidingWindowLimiter{
		client: client,
		limit:  limit,
		window: window,
		clock:  clk,
	}
}

func (l *slidingWindowLimiter) Allow(ctx context.Context, key string) (service.Decision, error) {
	now := l.clock.Now()
	// Scores are unix nanos; the cutoff score has aged out of the
	// closed-open window.
	cutoff := now.Add(-l.window).UnixNano()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{admissionKeyPrefix + key},
		strconv.FormatInt(cutoff, 10),
		strconv.FormatInt(now.UnixNano(), 10),
		l.limit,
		l.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return service.Decision{}, fmt.Errorf("admission check failed for key %s: %w", key, err)
	}
	if len(res) != 2 {
		return service.Decision{}, fmt.Errorf("admission check returned malformed result for key %s", key)
	}

	return service.Decision{
		Granted:   res[0] == 1,
		Remaining: int(res[1]),
	}, nil
}
