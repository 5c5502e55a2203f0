// Package cli implements the universe command-line interface using Cobra.
// It calls providers directly through the gateway client with credentials
// resolved from local sources.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/enterprise-universe/universe-gateway/internal/config"
	"github.com/enterprise-universe/universe-gateway/internal/credential"
	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/redact"
	"github.com/enterprise-universe/universe-gateway/internal/registry"
)

const envPrefix = "UNIVERSE_CRED_"

// app carries the persistent flags and the collaborators tests replace.
type app struct {
	out    io.Writer
	errOut io.Writer
	stdin  io.Reader

	providersFile  string
	envFile        string
	credFile       string
	keyringService string
	keyringKeys    []string
	verbose        bool

	// doer replaces the outbound HTTP client when set.
	doer     gateway.Doer
	redactor *redact.Redactor
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd(&app{}).Execute()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "universe",
		Short: "Universe - call any catalogued API with locally held credentials",
		Long: `universe looks providers up in the embedded catalog, resolves their
credentials from an env file, a credentials file or the OS keyring, and
performs one authenticated request per invocation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.out == nil {
				a.out = cmd.OutOrStdout()
			}
			if a.errOut == nil {
				a.errOut = cmd.ErrOrStderr()
			}
			if a.stdin == nil {
				a.stdin = cmd.InOrStdin()
			}
			a.redactor = redact.New(nil)
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{
				Level:       level,
				ReplaceAttr: a.redactor.ReplaceAttr,
			})))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.providersFile, "providers", "", "providers.yaml with overrides for the embedded catalog")
	pf.StringVar(&a.envFile, "env-file", "", ".env file with "+envPrefix+"* credentials")
	pf.StringVar(&a.credFile, "credentials", "", "credentials.yaml file")
	pf.StringVar(&a.keyringService, "keyring", envOr("UNIVERSE_KEYRING", ""), "OS keyring service to read credentials from")
	pf.StringSliceVar(&a.keyringKeys, "keyring-key", nil, "credential keys to read from the keyring (repeatable)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log provider calls to stderr")

	root.AddCommand(
		newProvidersCmd(a),
		newCallCmd(a),
		newCredentialsCmd(a),
		newQuoteCmd(a),
		newWeatherCmd(a),
		newSnapshotCmd(a),
		newTelegramCmd(a),
	)
	return root
}

func (a *app) registry() (*registry.Registry, error) {
	var overrides *config.ProvidersConfig
	if a.providersFile != "" {
		overrides = &config.ProvidersConfig{}
		if err := config.LoadFile(a.providersFile, overrides); err != nil {
			return nil, err
		}
	}
	return registry.Default(overrides)
}

func (a *app) credentials(ctx context.Context) (*credential.Store, error) {
	sources := []credential.Source{&credential.EnvSource{File: a.envFile, Prefix: envPrefix}}
	if a.credFile != "" {
		sources = append(sources, &credential.FileSource{Path: a.credFile})
	}
	if a.keyringService != "" && len(a.keyringKeys) > 0 {
		sources = append(sources, &credential.KeyringSource{Service: a.keyringService, Keys: a.keyringKeys})
	}
	creds, err := credential.Resolve(ctx, sources...)
	if err != nil {
		return nil, err
	}
	a.redactor.SetSecrets(creds.Secrets())
	return creds, nil
}

// client resolves credentials and the registry and builds a gateway client.
// timeout bounds calls to providers without a timeout of their own.
func (a *app) client(ctx context.Context, timeout time.Duration) (*gateway.Client, error) {
	creds, err := a.credentials(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	opts := []gateway.Option{
		gateway.WithUserAgent("universe-cli/1.0"),
		gateway.WithDefaultTimeout(timeout),
	}
	if a.doer != nil {
		opts = append(opts, gateway.WithDoer(a.doer))
	}
	return gateway.New(reg, creds, opts...), nil
}

// printJSON writes v as indented JSON. Raw JSON bytes are re-indented.
func (a *app) printJSON(v any) error {
	var pretty bytes.Buffer
	if raw, ok := v.(json.RawMessage); ok {
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(raw)
		}
	} else {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		pretty.Write(b)
	}
	pretty.WriteByte('\n')
	_, err := a.out.Write(pretty.Bytes())
	return err
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// fail prints a redacted error line and returns err so the process exits 1.
func (a *app) fail(err error) error {
	fmt.Fprintf(a.errOut, "error: %s\n", a.redactor.Error(err))
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
