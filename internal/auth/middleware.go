package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/enterprise-universe/universe-gateway/internal/httputil"
)

// Denier counts rejected relay requests. *telemetry.Metrics satisfies it.
type Denier interface {
	RecordDenied(reason string)
}

// Middleware returns a chi middleware that authenticates relay callers via
// Bearer token. denied may be nil.
func Middleware(store KeyStore, denied Denier) func(http.Handler) http.Handler {
	deny := func(w http.ResponseWriter, reqID, msg string) {
		if denied != nil {
			denied.RecordDenied("auth")
		}
		httputil.WriteAuthError(w, reqID, msg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				deny(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				deny(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
				return
			}
			if token == "" {
				deny(w, reqID, "Empty API key")
				return
			}

			meta, err := store.Lookup(r.Context(), HashKey(token))
			if err != nil {
				slog.Error("key lookup failed", "error", err, "key_prefix", KeyPrefix(token))
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if meta == nil {
				slog.Warn("auth failed: key not found", "key_prefix", KeyPrefix(token))
				deny(w, reqID, "Invalid API key")
				return
			}

			info := &AuthInfo{
				KeyID:            meta.ID,
				KeyPrefix:        KeyPrefix(token),
				OrganizationID:   meta.OrganizationID,
				TeamID:           meta.TeamID,
				UserID:           meta.UserID,
				AllowedProviders: meta.AllowedProviders,
				RPMLimit:         meta.RPMLimit,
				DailyCallQuota:   meta.DailyCallQuota,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithAuth(r.Context(), info)))
		})
	}
}
