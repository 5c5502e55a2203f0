package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringSource reads the listed keys from the OS keychain (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager). Keys absent from the
// keychain are skipped.
type KeyringSource struct {
	Service string
	Keys    []string
}

func (k *KeyringSource) Name() string { return "keyring " + k.Service }

func (k *KeyringSource) Load(context.Context, *Store) (map[string]string, error) {
	out := make(map[string]string, len(k.Keys))
	for _, key := range k.Keys {
		secret, err := keyring.Get(k.Service, key)
		if errors.Is(err, keyring.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("keychain get %s: %w", key, err)
		}
		out[key] = secret
	}
	return out, nil
}

// StoreInKeyring saves one secret under service/key. Used by the CLI.
func StoreInKeyring(service, key, secret string) error {
	if err := keyring.Set(service, key, secret); err != nil {
		return fmt.Errorf("keychain set %s: %w", key, err)
	}
	return nil
}
