package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/enterprise-universe/universe-gateway/internal/types"
)

func newProvidersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect the provider catalog",
	}
	cmd.AddCommand(newProvidersListCmd(a), newProvidersShowCmd(a))
	return cmd
}

func newProvidersListCmd(a *app) *cobra.Command {
	var (
		category string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalogued providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return a.fail(err)
			}

			var descs []types.ProviderDescriptor
			if category != "" {
				descs = reg.InCategory(category)
				if len(descs) == 0 {
					return a.fail(fmt.Errorf("unknown category %q (have %s)", category, strings.Join(reg.Categories(), ", ")))
				}
			} else {
				for _, key := range reg.Keys() {
					d, err := reg.Lookup(key)
					if err != nil {
						return a.fail(err)
					}
					descs = append(descs, d)
				}
			}

			if jsonOut {
				out := make([]providerJSON, len(descs))
				for i, d := range descs {
					out[i] = toProviderJSON(d)
				}
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tAUTH\tDESCRIPTION")
			for _, d := range descs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Key(), d.AuthScheme, d.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list providers in this category")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func newProvidersShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <key>",
		Short: "Show one provider descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return a.fail(err)
			}
			d, err := reg.Lookup(args[0])
			if err != nil {
				return a.fail(err)
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Key:\t%s\n", d.Key())
			fmt.Fprintf(w, "Base URL:\t%s\n", d.BaseURL)
			fmt.Fprintf(w, "Auth:\t%s\n", d.AuthScheme)
			if len(d.AuthParams) > 0 {
				fmt.Fprintf(w, "Auth params:\t%s\n", strings.Join(d.AuthParams, ", "))
			}
			if d.AuthScheme == types.AuthBearer {
				fmt.Fprintf(w, "Token prefix:\t%s\n", d.BearerPrefix())
			}
			if d.Timeout > 0 {
				fmt.Fprintf(w, "Timeout:\t%s\n", d.Timeout)
			}
			if d.Description != "" {
				fmt.Fprintf(w, "Description:\t%s\n", d.Description)
			}
			for _, k := range sortedKeys(d.Headers) {
				fmt.Fprintf(w, "Header:\t%s: %s\n", k, d.Headers[k])
			}
			for _, k := range sortedKeys(d.Endpoints) {
				fmt.Fprintf(w, "Endpoint:\t%s -> %s\n", k, d.Endpoints[k])
			}
			return w.Flush()
		},
	}
}

type providerJSON struct {
	Key         string   `json:"key"`
	Category    string   `json:"category"`
	Name        string   `json:"name"`
	BaseURL     string   `json:"base_url"`
	AuthScheme  string   `json:"auth_scheme"`
	AuthParams  []string `json:"auth_params,omitempty"`
	Description string   `json:"description,omitempty"`
}

func toProviderJSON(d types.ProviderDescriptor) providerJSON {
	return providerJSON{
		Key:         d.Key(),
		Category:    d.Category,
		Name:        d.Name,
		BaseURL:     d.BaseURL,
		AuthScheme:  string(d.AuthScheme),
		AuthParams:  d.AuthParams,
		Description: d.Description,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
