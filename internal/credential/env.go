package credential

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvSource reads prefixed variables from an optional .env file and the
// process environment; the process environment wins. Without a Prefix only
// the .env file is read.
//
//	UNIVERSE_CRED_STRIPE=sk_live_xxx          -> stripe
//	UNIVERSE_CRED_KLARNA__USERNAME=merchant   -> klarna.username
//	UNIVERSE_CRED_APIKEY=xxx                  -> apiKey
type EnvSource struct {
	File   string
	Prefix string

	// Environ defaults to os.Environ.
	Environ func() []string
}

func (e *EnvSource) Name() string {
	if e.File != "" {
		return "env " + e.File
	}
	return "env"
}

func (e *EnvSource) Load(context.Context, *Store) (map[string]string, error) {
	vars := make(map[string]string)
	if e.File != "" {
		fileVars, err := godotenv.Read(e.File)
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}

	if e.Prefix != "" {
		environ := e.Environ
		if environ == nil {
			environ = os.Environ
		}
		for _, kv := range environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				vars[k] = v
			}
		}
	}

	out := make(map[string]string)
	for k, v := range vars {
		if e.Prefix != "" && !strings.HasPrefix(k, e.Prefix) {
			continue
		}
		name := strings.TrimPrefix(k, e.Prefix)
		if name == "" {
			continue
		}
		out[strings.ReplaceAll(name, "__", ".")] = v
	}
	return out, nil
}
