// Package credential resolves provider secrets from files, the environment,
// the OS keyring, AWS Secrets Manager and OAuth2 token endpoints into an
// immutable Store that the gateway client reads from.
//
// Keys are case-insensitive. Provider-specific entries use "<provider>.<slot>"
// (e.g. "klarna.username") or the bare provider name for single-secret
// providers ("stripe"); generic slots ("apiKey", "accessToken", "username",
// "password") apply to every provider that lacks its own entry.
package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Well-known slot names.
const (
	SlotAPIKey      = "apiKey"
	SlotAccessToken = "accessToken"
	SlotUsername    = "username"
	SlotPassword    = "password"
)

// ErrNotSerializable is returned when something tries to marshal a Store.
var ErrNotSerializable = errors.New("credential store cannot be serialized")

// Store is a read-only map of credential keys to secrets.
type Store struct {
	values map[string]string
}

// NewStore copies values into a new Store. Empty values are dropped so that a
// blank entry never counts as a present credential.
func NewStore(values map[string]string) *Store {
	s := &Store{values: make(map[string]string, len(values))}
	for k, v := range values {
		if v == "" {
			continue
		}
		s.values[normalize(k)] = v
	}
	return s
}

// Key joins a provider name and slot into a store key.
func Key(provider, slot string) string {
	return provider + "." + slot
}

func normalize(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// Get returns the secret stored under key.
func (s *Store) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[normalize(key)]
	return v, ok
}

// First returns the first key in keys that holds a secret, with its value.
func (s *Store) First(keys ...string) (key, value string, ok bool) {
	for _, k := range keys {
		if v, found := s.Get(k); found {
			return k, v, true
		}
	}
	return "", "", false
}

// Keys returns the stored key names in sorted order.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Secrets returns every stored value. Used to build log redactors.
func (s *Store) Secrets() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	return out
}

func (s *Store) String() string {
	return fmt.Sprintf("credential.Store{keys: [%s]}", strings.Join(s.Keys(), " "))
}

func (s *Store) GoString() string {
	return s.String()
}

// LogValue keeps secrets out of structured logs.
func (s *Store) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("count", s.Len()),
		slog.Any("keys", s.Keys()),
	)
}

func (s *Store) MarshalJSON() ([]byte, error) {
	return nil, ErrNotSerializable
}

func (s *Store) MarshalYAML() (interface{}, error) {
	return nil, ErrNotSerializable
}
