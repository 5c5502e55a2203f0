package credential

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"

	"github.com/enterprise-universe/universe-gateway/internal/config"
)

// Source produces credential entries. prior holds everything resolved by
// earlier sources, so derived sources (OAuth2) can read client secrets.
type Source interface {
	Name() string
	Load(ctx context.Context, prior *Store) (map[string]string, error)
}

// Resolve loads sources in order and merges them; later sources win.
func Resolve(ctx context.Context, sources ...Source) (*Store, error) {
	merged := make(map[string]string)
	for _, src := range sources {
		if src == nil {
			continue
		}
		values, err := src.Load(ctx, NewStore(merged))
		if err != nil {
			return nil, fmt.Errorf("load credentials from %s: %w", src.Name(), err)
		}
		for k, v := range values {
			merged[normalize(k)] = v
		}
		slog.Debug("credential source loaded", "source", src.Name(), "keys", len(values))
	}
	return NewStore(merged), nil
}

// Static is a fixed set of entries, mostly useful in tests and the CLI.
type Static map[string]string

func (s Static) Name() string { return "static" }

func (s Static) Load(context.Context, *Store) (map[string]string, error) {
	return maps.Clone(map[string]string(s)), nil
}

// FromConfig builds the source chain described by the credentials section of
// gateway.yaml: env, file, keyring, secrets manager, then OAuth2 grants.
func FromConfig(cfg config.CredentialsConfig) []Source {
	var sources []Source
	if cfg.EnvFile != "" || cfg.EnvPrefix != "" {
		sources = append(sources, &EnvSource{File: cfg.EnvFile, Prefix: cfg.EnvPrefix})
	}
	if cfg.File != "" {
		sources = append(sources, &FileSource{Path: cfg.File})
	}
	if cfg.Keyring.Service != "" && len(cfg.Keyring.Keys) > 0 {
		sources = append(sources, &KeyringSource{Service: cfg.Keyring.Service, Keys: cfg.Keyring.Keys})
	}
	if cfg.SecretsManager.SecretID != "" {
		sources = append(sources, &SecretsManagerSource{
			SecretID: cfg.SecretsManager.SecretID,
			Region:   cfg.SecretsManager.Region,
		})
	}

	providers := make([]string, 0, len(cfg.OAuth2))
	for p := range cfg.OAuth2 {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		o := cfg.OAuth2[p]
		sources = append(sources, &OAuth2Source{
			Provider:        p,
			TokenURL:        o.TokenURL,
			ClientIDKey:     o.ClientIDKey,
			ClientSecretKey: o.ClientSecretKey,
			Scopes:          o.Scopes,
		})
	}
	return sources
}

// flatten turns a decoded YAML or JSON document into store entries. Scalars
// map to their key; one level of nesting maps to "<provider>.<slot>".
func flatten(doc map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range doc {
		switch val := v.(type) {
		case nil:
		case map[string]any:
			for slot, inner := range val {
				s, err := scalar(inner)
				if err != nil {
					return nil, fmt.Errorf("entry %s.%s: %w", k, slot, err)
				}
				out[Key(k, slot)] = s
			}
		default:
			s, err := scalar(val)
			if err != nil {
				return nil, fmt.Errorf("entry %s: %w", k, err)
			}
			out[k] = s
		}
	}
	return out, nil
}

func scalar(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case int, int64, float64, bool:
		return fmt.Sprint(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
