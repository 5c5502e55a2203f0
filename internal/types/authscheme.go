package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// AuthScheme is the mechanism by which a credential is attached to a provider request.
type AuthScheme string

const (
	AuthNone         AuthScheme = "none"
	AuthBearer       AuthScheme = "bearer"
	AuthBasic        AuthScheme = "basic"
	AuthAPIKeyHeader AuthScheme = "apiKeyHeader"
	AuthAPIKeyQuery  AuthScheme = "apiKeyQuery"
	AuthPathInjected AuthScheme = "pathInjected"
)

// AuthSchemes returns every supported scheme in declaration order.
func AuthSchemes() []AuthScheme {
	return []AuthScheme{AuthNone, AuthBearer, AuthBasic, AuthAPIKeyHeader, AuthAPIKeyQuery, AuthPathInjected}
}

// ParseAuthScheme accepts the canonical names plus the short aliases used by
// older registry files ("header", "query", "path").
func ParseAuthScheme(s string) (AuthScheme, bool) {
	switch s {
	case "", "none":
		return AuthNone, true
	case "bearer":
		return AuthBearer, true
	case "basic":
		return AuthBasic, true
	case "apiKeyHeader", "header":
		return AuthAPIKeyHeader, true
	case "apiKeyQuery", "query":
		return AuthAPIKeyQuery, true
	case "pathInjected", "path":
		return AuthPathInjected, true
	default:
		return "", false
	}
}

// UsesHeader reports whether the scheme attaches the credential as a request header.
func (a AuthScheme) UsesHeader() bool {
	return a == AuthBearer || a == AuthBasic || a == AuthAPIKeyHeader
}

// NeedsParamName reports whether AuthParamName is meaningful for the scheme.
func (a AuthScheme) NeedsParamName() bool {
	return a == AuthAPIKeyHeader || a == AuthAPIKeyQuery
}

func (a *AuthScheme) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, ok := ParseAuthScheme(s)
	if !ok {
		return fmt.Errorf("line %d: unknown auth scheme %q", node.Line, s)
	}
	*a = parsed
	return nil
}
