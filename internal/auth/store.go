package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "universe:key:"

// KeyStore looks up API key metadata by hash. A nil result means unknown,
// revoked or expired.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error)
}

// CachedKeyStore implements KeyStore with PostgreSQL and a Redis cache.
type CachedKeyStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedKeyStore(db *pgxpool.Pool, rdb *redis.Client) *CachedKeyStore {
	return &CachedKeyStore{db: db, redis: rdb}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var meta KeyMetadata
			if err := json.Unmarshal(cached, &meta); err == nil && time.Now().Before(meta.ExpiresAt) {
				return &meta, nil
			}
		}
	}

	meta, err := s.lookupDB(ctx, keyHash)
	if err != nil || meta == nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(meta); err == nil {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, redisCacheTTL)
		}
	}
	return meta, nil
}

func (s *CachedKeyStore) lookupDB(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	var meta KeyMetadata
	var allowedJSON []byte
	var userID *string

	err := s.db.QueryRow(ctx, `
		SELECT id, organization_id, team_id, user_id, name,
		       allowed_providers, rpm_limit, daily_call_quota, expires_at
		FROM api_keys
		WHERE key_hash = $1
		  AND status = 'active'
		  AND expires_at > NOW()
	`, keyHash).Scan(
		&meta.ID,
		&meta.OrganizationID,
		&meta.TeamID,
		&userID,
		&meta.Name,
		&allowedJSON,
		&meta.RPMLimit,
		&meta.DailyCallQuota,
		&meta.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query api_keys: %w", err)
	}

	if userID != nil {
		meta.UserID = *userID
	}
	if len(allowedJSON) > 0 {
		if err := json.Unmarshal(allowedJSON, &meta.AllowedProviders); err != nil {
			return nil, fmt.Errorf("decode allowed_providers for key %s: %w", meta.ID, err)
		}
	}

	// Fire-and-forget; a failed touch must not fail authentication.
	go func(id string) {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := s.db.Exec(bgCtx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id); err != nil {
			slog.Debug("update last_used_at failed", "key_id", id, "error", err)
		}
	}(meta.ID)

	return &meta, nil
}

// NewKey is the row written by InsertKey.
type NewKey struct {
	OrganizationID   string
	TeamID           string
	UserID           string
	Name             string
	AllowedProviders []string
	RPMLimit         *int
	DailyCallQuota   *int64
	ExpiresAt        time.Time
}

// QueryRower is satisfied by *pgx.Conn and *pgxpool.Pool.
type QueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertKey stores the hash of rawKey and returns the new key id.
func InsertKey(ctx context.Context, db QueryRower, rawKey string, k NewKey) (string, error) {
	allowed, err := json.Marshal(k.AllowedProviders)
	if err != nil {
		return "", fmt.Errorf("encode allowed providers: %w", err)
	}
	if k.AllowedProviders == nil {
		allowed = []byte("[]")
	}
	var userID *string
	if k.UserID != "" {
		userID = &k.UserID
	}

	var id string
	err = db.QueryRow(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, organization_id, team_id, user_id, name,
		                      allowed_providers, rpm_limit, daily_call_quota, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, HashKey(rawKey), KeyPrefix(rawKey), k.OrganizationID, k.TeamID, userID, k.Name,
		allowed, k.RPMLimit, k.DailyCallQuota, k.ExpiresAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert api key: %w", err)
	}
	return id, nil
}
