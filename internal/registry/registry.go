package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/enterprise-universe/universe-gateway/internal/config"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Registry is the read-only set of provider descriptors. It is safe for
// concurrent use because nothing mutates it after Build returns.
type Registry struct {
	byKey  map[string]types.ProviderDescriptor
	byName map[string][]string
	keys   []string
}

// ErrNotFound is returned by Lookup for keys that match no provider.
var ErrNotFound = errors.New("unknown provider")

// AmbiguousNameError is returned when a bare provider name exists in several categories.
type AmbiguousNameError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("provider name %q is ambiguous: %s", e.Name, strings.Join(e.Candidates, ", "))
}

// Catalog returns the embedded provider catalog.
func Catalog() (*config.ProvidersConfig, error) {
	var cat config.ProvidersConfig
	if err := yaml.Unmarshal(catalogYAML, &cat); err != nil {
		return nil, fmt.Errorf("parse embedded catalog: %w", err)
	}
	return &cat, nil
}

// Default builds a registry from the embedded catalog merged with overrides.
func Default(overrides *config.ProvidersConfig) (*Registry, error) {
	cat, err := Catalog()
	if err != nil {
		return nil, err
	}
	return Build(Merge(cat, overrides))
}

// Merge overlays entries from override onto base by category and name. Whole
// entries are replaced; a Disabled override removes the provider.
func Merge(base, override *config.ProvidersConfig) *config.ProvidersConfig {
	out := &config.ProvidersConfig{Categories: make(map[string]map[string]config.ProviderConfig)}
	for _, src := range []*config.ProvidersConfig{base, override} {
		if src == nil {
			continue
		}
		for category, providers := range src.Categories {
			if out.Categories[category] == nil {
				out.Categories[category] = make(map[string]config.ProviderConfig)
			}
			for name, p := range providers {
				out.Categories[category][name] = p
			}
		}
	}
	return out
}

// Build validates every entry and returns an immutable registry.
func Build(provCfg *config.ProvidersConfig) (*Registry, error) {
	r := &Registry{
		byKey:  make(map[string]types.ProviderDescriptor),
		byName: make(map[string][]string),
	}
	if provCfg == nil {
		return r, nil
	}

	for category, providers := range provCfg.Categories {
		for name, cfg := range providers {
			if cfg.Disabled {
				continue
			}
			d, err := descriptorFromConfig(category, name, cfg)
			if err != nil {
				return nil, err
			}
			key := d.Key()
			r.byKey[key] = d
			r.byName[name] = append(r.byName[name], key)
			r.keys = append(r.keys, key)
		}
	}

	sort.Strings(r.keys)
	for name := range r.byName {
		sort.Strings(r.byName[name])
	}
	return r, nil
}

func descriptorFromConfig(category, name string, cfg config.ProviderConfig) (types.ProviderDescriptor, error) {
	key := category + "." + name
	if strings.ContainsAny(name, ". ") || strings.ContainsAny(category, ". ") {
		return types.ProviderDescriptor{}, fmt.Errorf("provider %s: category and name must not contain dots or spaces", key)
	}

	if err := checkPlaceholders(cfg.BaseURL); err != nil {
		return types.ProviderDescriptor{}, fmt.Errorf("provider %s: base_url %q: %w", key, cfg.BaseURL, err)
	}
	u, err := url.Parse(placeholderSafe(cfg.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return types.ProviderDescriptor{}, fmt.Errorf("provider %s: invalid base_url %q", key, cfg.BaseURL)
	}
	if strings.Contains(cfg.BaseURL, "?") {
		return types.ProviderDescriptor{}, fmt.Errorf("provider %s: base_url must not carry a query string", key)
	}

	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = types.AuthNone
	}

	var params []string
	if cfg.AuthParam != "" {
		params = append(params, cfg.AuthParam)
	}
	for _, p := range cfg.AuthParams {
		if p != "" && p != cfg.AuthParam {
			params = append(params, p)
		}
	}
	switch scheme {
	case types.AuthAPIKeyHeader:
		if len(params) != 1 {
			return types.ProviderDescriptor{}, fmt.Errorf("provider %s: apiKeyHeader needs exactly one auth_param", key)
		}
	case types.AuthAPIKeyQuery:
		if len(params) == 0 {
			return types.ProviderDescriptor{}, fmt.Errorf("provider %s: apiKeyQuery needs auth_param or auth_params", key)
		}
	default:
		// authParamName is meaningless for the remaining schemes.
		params = nil
	}

	prefix := cfg.TokenPrefix
	if scheme != types.AuthBearer {
		prefix = ""
	}

	return types.ProviderDescriptor{
		Name:        name,
		Category:    category,
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		AuthScheme:  scheme,
		AuthParams:  params,
		TokenPrefix: prefix,
		Headers:     cfg.Headers,
		Timeout:     cfg.Timeout,
		Description: cfg.Description,
		Endpoints:   cfg.Endpoints,
	}, nil
}

// checkPlaceholders requires every {name} in a base URL to be closed, named
// and not nested.
func checkPlaceholders(s string) error {
	open := -1
	for i, r := range s {
		switch r {
		case '{':
			if open >= 0 {
				return fmt.Errorf("nested placeholder at offset %d", i)
			}
			open = i
		case '}':
			if open < 0 {
				return fmt.Errorf("unmatched '}' at offset %d", i)
			}
			if i == open+1 {
				return fmt.Errorf("empty placeholder at offset %d", open)
			}
			open = -1
		}
	}
	if open >= 0 {
		return fmt.Errorf("unterminated placeholder at offset %d", open)
	}
	return nil
}

// placeholderSafe swaps {name} placeholders for a neutral token so the base
// URL can be syntax-checked before substitution.
func placeholderSafe(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '{':
			depth++
			if depth == 1 {
				b.WriteString("x")
			}
		case r == '}' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup resolves "category.name" or a bare name that is unique across categories.
func (r *Registry) Lookup(key string) (types.ProviderDescriptor, error) {
	if d, ok := r.byKey[key]; ok {
		return d.Clone(), nil
	}
	if strings.Contains(key, ".") {
		return types.ProviderDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	switch keys := r.byName[key]; len(keys) {
	case 0:
		return types.ProviderDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	case 1:
		return r.byKey[keys[0]].Clone(), nil
	default:
		return types.ProviderDescriptor{}, &AmbiguousNameError{Name: key, Candidates: append([]string(nil), keys...)}
	}
}

// Keys returns all provider keys in sorted order.
func (r *Registry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Categories returns the sorted category names.
func (r *Registry) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, key := range r.keys {
		c := r.byKey[key].Category
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// InCategory returns the descriptors of one category sorted by name.
func (r *Registry) InCategory(category string) []types.ProviderDescriptor {
	var out []types.ProviderDescriptor
	for _, key := range r.keys {
		if d := r.byKey[key]; d.Category == category {
			out = append(out, d.Clone())
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.keys)
}
