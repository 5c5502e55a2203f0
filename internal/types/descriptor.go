package types

import (
	"maps"
	"slices"
	"time"
)

// ProviderDescriptor describes one third-party API: where it lives and how a
// credential is attached. Descriptors are built once by the registry and never
// mutated afterwards.
type ProviderDescriptor struct {
	Name        string
	Category    string
	BaseURL     string
	AuthScheme  AuthScheme
	AuthParams  []string
	TokenPrefix string
	Headers     map[string]string
	Timeout     time.Duration
	Description string
	Endpoints   map[string]string
}

// Key returns the registry key: category.name.
func (d ProviderDescriptor) Key() string {
	if d.Category == "" {
		return d.Name
	}
	return d.Category + "." + d.Name
}

// AuthParamName is the header or query parameter name used by the
// apiKeyHeader and apiKeyQuery schemes.
func (d ProviderDescriptor) AuthParamName() string {
	if len(d.AuthParams) == 0 {
		return ""
	}
	return d.AuthParams[0]
}

// BearerPrefix returns the Authorization prefix for the bearer scheme.
func (d ProviderDescriptor) BearerPrefix() string {
	if d.TokenPrefix == "" {
		return "Bearer"
	}
	return d.TokenPrefix
}

// Clone returns a deep copy so callers cannot reach into registry state.
func (d ProviderDescriptor) Clone() ProviderDescriptor {
	d.AuthParams = slices.Clone(d.AuthParams)
	d.Headers = maps.Clone(d.Headers)
	d.Endpoints = maps.Clone(d.Endpoints)
	return d
}
