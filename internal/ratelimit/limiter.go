package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const limiterKeyPrefix = "universe:rl:"

// LimitResult is the outcome of one admission check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter admits relay callers against a sliding window kept in a Redis
// sorted set per bucket. A nil client admits everything.
type Limiter struct {
	rdb *redis.Client
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

// admitScript trims the window, admits when below the limit and returns
// {count, admitted, oldest_score}. Members come from the caller because
// math.random inside Redis scripts repeats across calls.
//
// KEYS[1] bucket key
// ARGV[1] window start, ARGV[2] now (both unix micro)
// ARGV[3] limit, ARGV[4] key ttl in seconds, ARGV[5] member
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[1])
local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
    redis.call('ZADD', key, now, ARGV[5])
    count = count + 1
    admitted = 1
end
redis.call('EXPIRE', key, ARGV[4])

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
    oldestScore = tonumber(oldest[2])
end
return {count, admitted, oldestScore}
`)

// Check counts one request against bucket. A limit <= 0 disables the bucket.
// Redis failures admit the request.
func (l *Limiter) Check(ctx context.Context, bucket string, limit int64, window time.Duration) (LimitResult, error) {
	now := time.Now()
	if l.rdb == nil || limit <= 0 {
		return LimitResult{Allowed: true, Remaining: max(limit-1, 0), ResetAt: now.Add(window)}, nil
	}

	vals, err := admitScript.Run(ctx, l.rdb, []string{limiterKeyPrefix + bucket},
		now.Add(-window).UnixMicro(),
		now.UnixMicro(),
		limit,
		int64(window.Seconds())+1,
		member(now),
	).Int64Slice()
	if err != nil || len(vals) != 3 {
		slog.Warn("rate limit check failed, allowing request", "bucket", bucket, "error", err)
		return LimitResult{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}
	return windowResult(now, window, limit, vals[0], vals[1] == 1, time.UnixMicro(vals[2])), nil
}

// windowResult derives the caller-facing numbers from the window state. The
// window frees a slot when its oldest entry ages out.
func windowResult(now time.Time, window time.Duration, limit, count int64, admitted bool, oldest time.Time) LimitResult {
	res := LimitResult{
		Allowed:   admitted,
		Remaining: max(limit-count, 0),
		ResetAt:   oldest.Add(window),
	}
	if !admitted {
		res.RetryAfter = max(res.ResetAt.Sub(now), time.Second)
	}
	return res
}

func member(now time.Time) string {
	b := make([]byte, 6)
	rand.Read(b)
	return now.Format("150405.000000") + "-" + hex.EncodeToString(b)
}
