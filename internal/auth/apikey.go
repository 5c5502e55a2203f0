package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"path"
	"strings"
	"time"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// KeyPrefixLiteral opens every relay API key.
const KeyPrefixLiteral = "uvg"

// GenerateKey creates a relay API key with the format uvg-{env}-{32 random alphanumeric chars}.
func GenerateKey(env string) (string, error) {
	if env == "" || strings.Contains(env, "-") {
		return "", fmt.Errorf("invalid key environment %q", env)
	}
	random, err := randomString(32)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", KeyPrefixLiteral, env, random), nil
}

// HashKey returns the SHA-256 hex digest of an API key.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix extracts a display-safe prefix: uvg-{env}-{first 8 chars}.
func KeyPrefix(key string) string {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) != 3 {
		if len(key) > 12 {
			return key[:12]
		}
		return key
	}
	random := parts[2]
	if len(random) > 8 {
		random = random[:8]
	}
	return parts[0] + "-" + parts[1] + "-" + random
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// KeyMetadata is the cached row for a relay API key.
type KeyMetadata struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	TeamID         string `json:"team_id"`
	UserID         string `json:"user_id,omitempty"`
	Name           string `json:"name"`
	// AllowedProviders holds provider keys or globs ("finance.*"). Empty allows all.
	AllowedProviders []string  `json:"allowed_providers"`
	RPMLimit         *int      `json:"rpm_limit,omitempty"`
	DailyCallQuota   *int64    `json:"daily_call_quota,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// AllowsProvider reports whether providerKey ("category.name") matches the
// allow list.
func AllowsProvider(allowed []string, providerKey string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, pattern := range allowed {
		if pattern == "*" || pattern == providerKey {
			return true
		}
		if ok, err := path.Match(pattern, providerKey); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseDuration parses a duration string like "365d", "30d", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration")
	}
	if s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("parse days: %w", err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
