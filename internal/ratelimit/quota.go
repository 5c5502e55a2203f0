package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaResult is the outcome of a daily quota check.
type QuotaResult struct {
	Allowed bool
	Used    int64
	Limit   int64
}

// QuotaTracker counts relayed calls per organization per UTC day via Redis.
type QuotaTracker struct {
	rdb *redis.Client
}

// NewQuotaTracker creates a quota tracker. If rdb is nil, all checks pass.
func NewQuotaTracker(rdb *redis.Client) *QuotaTracker {
	return &QuotaTracker{rdb: rdb}
}

func dailyQuotaKey(orgID string, now time.Time) string {
	return fmt.Sprintf("universe:quota:daily:%s:%s", orgID, now.UTC().Format("2006-01-02"))
}

// Consume counts one call against the organization's daily quota and
// reports whether it fits. A limit <= 0 means unlimited.
func (q *QuotaTracker) Consume(ctx context.Context, orgID string, limit int64) (QuotaResult, error) {
	if q.rdb == nil || limit <= 0 {
		return QuotaResult{Allowed: true, Limit: limit}, nil
	}

	now := time.Now().UTC()
	key := dailyQuotaKey(orgID, now)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	pipe := q.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Expire at end of day UTC + 1 hour buffer
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open on Redis errors
		slog.Warn("quota check failed, allowing call", "org_id", orgID, "error", err)
		return QuotaResult{Allowed: true, Limit: limit}, nil
	}

	used := incr.Val()
	return QuotaResult{Allowed: used <= limit, Used: used, Limit: limit}, nil
}

// Used returns today's call count without consuming quota.
func (q *QuotaTracker) Used(ctx context.Context, orgID string) (int64, error) {
	if q.rdb == nil {
		return 0, nil
	}
	n, err := q.rdb.Get(ctx, dailyQuotaKey(orgID, time.Now())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daily quota: %w", err)
	}
	return n, nil
}
