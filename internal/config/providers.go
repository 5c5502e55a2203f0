package config

import (
	"time"

	"github.com/enterprise-universe/universe-gateway/internal/types"
)

// ProvidersConfig is the declarative provider catalog: category -> name -> entry.
type ProvidersConfig struct {
	Categories map[string]map[string]ProviderConfig `yaml:"categories"`
}

type ProviderConfig struct {
	BaseURL     string            `yaml:"base_url"`
	AuthScheme  types.AuthScheme  `yaml:"auth_scheme"`
	AuthParam   string            `yaml:"auth_param,omitempty"`
	AuthParams  []string          `yaml:"auth_params,omitempty"`
	TokenPrefix string            `yaml:"token_prefix,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Timeout     time.Duration     `yaml:"timeout,omitempty"`
	Description string            `yaml:"description,omitempty"`
	Endpoints   map[string]string `yaml:"endpoints,omitempty"`
	Disabled    bool              `yaml:"disabled,omitempty"`
}

// Len counts provider entries across categories.
func (p *ProvidersConfig) Len() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, providers := range p.Categories {
		n += len(providers)
	}
	return n
}
