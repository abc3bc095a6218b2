package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// slidingAllowScript prunes the window, checks the cap and records the
// action in one atomic step, so two concurrent callers can never both
// claim the last free slot. Returns {1, 0} when allowed, {0, oldest
// surviving score} when the window is full.
var slidingAllowScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window + 1000)
  return {1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, oldest[2]}
`)

// RateRepo keeps a sliding log of action timestamps per key in a sorted
// set. Scores are unix milliseconds (exactly representable in a float64
// score); members carry a nanosecond suffix to stay unique within one
// millisecond. The caller supplies the clock so tests can drive time
// explicitly.
type RateRepo struct {
	client *goredis.Client
}

func NewRateRepo(client *goredis.Client) *RateRepo {
	return &RateRepo{client: client}
}

// SlidingAllow atomically prunes entries older than the window and, if the
// cap leaves room, records one action at the given instant and refreshes
// the key TTL. When denied it reports the timestamp of the oldest counted
// entry so the caller can compute a retry hint.
func (r *RateRepo) SlidingAllow(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (bool, time.Time, error) {
	if r.client == nil {
		return false, time.Time{}, fmt.Errorf("redis client is nil")
	}
	if key == "" || window <= 0 || limit <= 0 {
		return false, time.Time{}, fmt.Errorf("invalid rate window payload")
	}

	res, err := slidingAllowScript.Run(ctx, r.client,
		[]string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		strconv.FormatInt(now.UnixNano(), 10),
	).Result()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("run rate window script: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) == 0 {
		return false, time.Time{}, fmt.Errorf("unexpected rate window reply: %v", res)
	}

	if granted, _ := reply[0].(int64); granted == 1 {
		return true, time.Time{}, nil
	}

	var oldest time.Time
	if len(reply) > 1 {
		if ms, err := replyScore(reply[1]); err == nil {
			oldest = time.UnixMilli(ms)
		}
	}
	return false, oldest, nil
}

func replyScore(value interface{}) (int64, error) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rate score: %w", err)
		}
		return int64(f), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected rate score type %T", value)
	}
}
