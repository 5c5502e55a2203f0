package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/enterprise-universe/universe-gateway/internal/auth"
	"github.com/enterprise-universe/universe-gateway/internal/httputil"
)

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withAuth(r *http.Request, info *auth.AuthInfo) *http.Request {
	return r.WithContext(auth.ContextWithAuth(r.Context(), info))
}

func TestMiddleware_AllowsRequest(t *testing.T) {
	mw := Middleware(NewLimiter(nil), NewQuotaTracker(nil), Limits{DefaultRPM: 60}, nil)
	handler := mw(okHandler())

	req := withAuth(httptest.NewRequest(http.MethodPost, "/v1/call", nil), &auth.AuthInfo{
		KeyID:          "key-1",
		OrganizationID: "org-1",
		TeamID:         "team-1",
		RPMLimit:       intPtr(100),
	})
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("expected X-RateLimit-Limit-Requests=100, got %s", h)
	}
	if h := rec.Header().Get(headerRateLimitRemainingRequests); h == "" {
		t.Error("expected X-RateLimit-Remaining-Requests header")
	}
	if h := rec.Header().Get(headerRateLimitReset); h == "" {
		t.Error("expected X-RateLimit-Reset-Requests header")
	}
}

func TestMiddleware_DefaultRPM(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		want   string
	}{
		{"configured", Limits{DefaultRPM: 120}, "120"},
		{"unset", Limits{}, "60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(NewLimiter(nil), NewQuotaTracker(nil), tt.limits, nil)(okHandler())
			req := withAuth(httptest.NewRequest(http.MethodPost, "/v1/call", nil), &auth.AuthInfo{KeyID: "key-2", OrganizationID: "org-1"})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if h := rec.Header().Get(headerRateLimitRequests); h != tt.want {
				t.Errorf("X-RateLimit-Limit-Requests = %s, want %s", h, tt.want)
			}
		})
	}
}

func TestMiddleware_QuotaHeaders(t *testing.T) {
	handler := Middleware(NewLimiter(nil), NewQuotaTracker(nil), Limits{DailyCallQuota: 500}, nil)(okHandler())

	req := withAuth(httptest.NewRequest(http.MethodPost, "/v1/call", nil), &auth.AuthInfo{
		KeyID:          "key-3",
		OrganizationID: "org-1",
		DailyCallQuota: int64Ptr(50),
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with nil Redis, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerQuotaLimit); h != "50" {
		t.Errorf("expected per-key quota 50 to win, got %s", h)
	}
}

func TestMiddleware_NoAuth_PassThrough(t *testing.T) {
	mw := Middleware(NewLimiter(nil), NewQuotaTracker(nil), Limits{}, nil)

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/call", nil))

	if !called {
		t.Error("expected handler to be called when no auth context")
	}
}

func TestQuotaExceededError_Format(t *testing.T) {
	// With nil Redis the quota always passes; check the envelope directly.
	rec := httptest.NewRecorder()
	httputil.WriteQuotaExceededError(rec, "req-3", "Daily call quota exceeded")

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}

	var apiErr httputil.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if apiErr.Error.Code != "daily_quota_exceeded" {
		t.Errorf("expected code 'daily_quota_exceeded', got %s", apiErr.Error.Code)
	}
}
