package types

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseAuthScheme(t *testing.T) {
	tests := []struct {
		input string
		want  AuthScheme
		valid bool
	}{
		{"none", AuthNone, true},
		{"", AuthNone, true},
		{"bearer", AuthBearer, true},
		{"basic", AuthBasic, true},
		{"apiKeyHeader", AuthAPIKeyHeader, true},
		{"header", AuthAPIKeyHeader, true},
		{"apiKeyQuery", AuthAPIKeyQuery, true},
		{"query", AuthAPIKeyQuery, true},
		{"pathInjected", AuthPathInjected, true},
		{"path", AuthPathInjected, true},
		{"oauth2", "", false},
		{"Bearer", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseAuthScheme(tt.input)
		if ok != tt.valid {
			t.Errorf("ParseAuthScheme(%q) valid = %v, want %v", tt.input, ok, tt.valid)
		}
		if got != tt.want {
			t.Errorf("ParseAuthScheme(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAuthScheme_UsesHeader(t *testing.T) {
	tests := []struct {
		scheme AuthScheme
		header bool
	}{
		{AuthNone, false},
		{AuthBearer, true},
		{AuthBasic, true},
		{AuthAPIKeyHeader, true},
		{AuthAPIKeyQuery, false},
		{AuthPathInjected, false},
	}

	for _, tt := range tests {
		if got := tt.scheme.UsesHeader(); got != tt.header {
			t.Errorf("%s.UsesHeader() = %v, want %v", tt.scheme, got, tt.header)
		}
	}
}

func TestAuthScheme_UnmarshalYAML(t *testing.T) {
	var out struct {
		Scheme AuthScheme `yaml:"scheme"`
	}
	if err := yaml.Unmarshal([]byte("scheme: query\n"), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Scheme != AuthAPIKeyQuery {
		t.Errorf("expected apiKeyQuery, got %s", out.Scheme)
	}

	if err := yaml.Unmarshal([]byte("scheme: aws\n"), &out); err == nil {
		t.Error("expected error for unknown scheme")
	}
}

func TestAuthSchemes_Complete(t *testing.T) {
	seen := map[AuthScheme]bool{}
	for _, s := range AuthSchemes() {
		if seen[s] {
			t.Errorf("duplicate scheme %s", s)
		}
		seen[s] = true
	}
	if len(seen) != 6 {
		t.Errorf("expected 6 schemes, got %d", len(seen))
	}
}
