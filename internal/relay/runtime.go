package relay

import (
	"sync/atomic"

	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/redact"
	"github.com/enterprise-universe/universe-gateway/internal/registry"
)

// Runtime is one immutable generation of the provider registry and the
// gateway client built over it.
type Runtime struct {
	Registry *registry.Registry
	Client   *gateway.Client
	// Secrets are the credential values Client may send.
	Secrets []string
}

// Current holds the active Runtime. A config reload stores a new one;
// calls already in flight keep the generation they loaded.
type Current struct {
	p atomic.Pointer[Runtime]
}

func NewCurrent(rt *Runtime) *Current {
	c := &Current{}
	c.p.Store(rt)
	return c
}

func (c *Current) Load() *Runtime { return c.p.Load() }

// Swap installs rt and returns the previous generation.
func (c *Current) Swap(rt *Runtime) *Runtime { return c.p.Swap(rt) }

// Install swaps in rt and points the redactor at the secrets of both rt and
// the generation it replaced, since calls on the old one may still be
// running. A nil redactor is skipped.
func (c *Current) Install(rt *Runtime, r *redact.Redactor) *Runtime {
	prev := c.Swap(rt)
	if r == nil {
		return prev
	}
	secrets := append([]string(nil), rt.Secrets...)
	if prev != nil {
		secrets = append(secrets, prev.Secrets...)
	}
	r.SetSecrets(secrets)
	return prev
}
