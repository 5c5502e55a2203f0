package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/enterprise-universe/universe-gateway/internal/credential"
)

func newCredentialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage locally held provider credentials",
	}
	cmd.AddCommand(newCredentialsSetCmd(a), newCredentialsListCmd(a))
	return cmd
}

func newCredentialsSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret read from stdin in the OS keyring",
		Long: `Reads one line from stdin and stores it under <key> (for example
"telegram" or "klarna.password") in the keyring service given by --keyring.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.keyringService == "" {
				return a.fail(errors.New("--keyring service is required"))
			}
			line, err := bufio.NewReader(a.stdin).ReadString('\n')
			secret := strings.TrimSpace(line)
			if secret == "" {
				if err != nil {
					return a.fail(fmt.Errorf("read secret from stdin: %w", err))
				}
				return a.fail(errors.New("empty secret"))
			}
			if err := credential.StoreInKeyring(a.keyringService, args[0], secret); err != nil {
				return a.fail(err)
			}
			fmt.Fprintf(a.out, "stored %s in keyring %s\n", args[0], a.keyringService)
			return nil
		},
	}
}

func newCredentialsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resolved credential keys (never values)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.credentials(cmd.Context())
			if err != nil {
				return a.fail(err)
			}
			for _, k := range creds.Keys() {
				fmt.Fprintln(a.out, k)
			}
			return nil
		},
	}
}
