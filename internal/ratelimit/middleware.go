package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/enterprise-universe/universe-gateway/internal/auth"
	"github.com/enterprise-universe/universe-gateway/internal/httputil"
)

const (
	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerQuotaLimit                 = "X-Quota-Limit-Daily"
	headerQuotaUsed                  = "X-Quota-Used-Daily"
	headerRetryAfter                 = "Retry-After"
)

// Limits are the relay-wide defaults used when a key carries no own limit.
type Limits struct {
	DefaultRPM     int
	DailyCallQuota int64
}

// Denier counts rejected relay requests. *telemetry.Metrics satisfies it.
type Denier interface {
	RecordDenied(reason string)
}

// Middleware returns chi middleware that enforces per-key request rate and
// the per-organization daily call quota. denied may be nil.
func Middleware(limiter *Limiter, quota *QuotaTracker, limits Limits, denied Denier) func(http.Handler) http.Handler {
	if limits.DefaultRPM <= 0 {
		limits.DefaultRPM = 60
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authInfo, ok := auth.AuthFromContext(r.Context())
			if !ok {
				// No auth info, let request pass (auth middleware will catch it)
				next.ServeHTTP(w, r)
				return
			}

			rpm := limits.DefaultRPM
			if authInfo.RPMLimit != nil {
				rpm = *authInfo.RPMLimit
			}

			result, _ := limiter.Check(r.Context(), "rpm:"+authInfo.KeyID, int64(rpm), time.Minute)

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"key_id", authInfo.KeyID,
					"org_id", authInfo.OrganizationID,
					"limit", rpm,
				)
				if denied != nil {
					denied.RecordDenied("rate_limit")
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(max(int(result.RetryAfter.Seconds()), 1)))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			daily := limits.DailyCallQuota
			if authInfo.DailyCallQuota != nil {
				daily = *authInfo.DailyCallQuota
			}
			if daily > 0 {
				q, _ := quota.Consume(r.Context(), authInfo.OrganizationID, daily)
				w.Header().Set(headerQuotaLimit, strconv.FormatInt(q.Limit, 10))
				w.Header().Set(headerQuotaUsed, strconv.FormatInt(min(q.Used, q.Limit), 10))
				if !q.Allowed {
					slog.Warn("daily call quota exceeded",
						"request_id", reqID,
						"key_id", authInfo.KeyID,
						"org_id", authInfo.OrganizationID,
						"used", q.Used,
						"limit", q.Limit,
					)
					if denied != nil {
						denied.RecordDenied("quota")
					}
					httputil.WriteQuotaExceededError(w, reqID,
						fmt.Sprintf("Daily call quota of %d calls exceeded for organization %s. Resets at 00:00 UTC", q.Limit, authInfo.OrganizationID))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
