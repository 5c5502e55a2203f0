package auth

import "context"

type contextKey string

const authContextKey contextKey = "universe_caller"

// AuthInfo identifies the relay caller behind a request.
type AuthInfo struct {
	KeyID            string
	KeyPrefix        string
	OrganizationID   string
	TeamID           string
	UserID           string
	AllowedProviders []string
	RPMLimit         *int
	DailyCallQuota   *int64
}

func (a *AuthInfo) AllowsProvider(providerKey string) bool {
	return AllowsProvider(a.AllowedProviders, providerKey)
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
