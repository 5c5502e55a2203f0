package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

var errInvalidFlag = errors.New("invalid flag value")

func newCallCmd(a *app) *cobra.Command {
	var (
		method  string
		params  []string
		headers []string
		vars    []string
		data    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <provider> <path>",
		Short: "Perform one authenticated request against a provider",
		Example: `  universe call finance.alphaVantage "" -p function=GLOBAL_QUOTE -p symbol=SAP
  universe call communication.telegram /sendMessage -d '{"chat_id":1,"text":"hi"}'
  universe call business.mailchimp /lists --var dc=us21`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := gateway.CallOptions{Method: method}

			var err error
			if opts.Params, err = parseParams(params); err != nil {
				return a.fail(err)
			}
			if opts.Headers, err = parsePairs(headers, ":"); err != nil {
				return a.fail(err)
			}
			if opts.PathVars, err = parsePairs(vars, "="); err != nil {
				return a.fail(err)
			}
			if data != "" {
				body, err := readBody(data)
				if err != nil {
					return a.fail(err)
				}
				opts.Body = body
			}

			ctx := cmdContext(cmd)
			client, err := a.client(ctx, timeout)
			if err != nil {
				return a.fail(err)
			}
			resp, err := client.Call(ctx, args[0], args[1], opts)
			if err != nil {
				return a.fail(err)
			}
			return a.printResponse(resp)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&method, "request", "X", "", "HTTP method (default GET, or POST with -d)")
	f.StringArrayVarP(&params, "param", "p", nil, "query parameter k=v (repeatable; repeated keys are comma-joined)")
	f.StringArrayVarP(&headers, "header", "H", nil, "extra header \"Name: value\" (repeatable)")
	f.StringArrayVar(&vars, "var", nil, "base URL placeholder value k=v (repeatable)")
	f.StringVarP(&data, "data", "d", "", "JSON request body, or @file to read it from a file")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	return cmd
}

// parseParams turns k=v pairs into call params. A repeated key becomes a
// list, which the gateway joins with commas.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: param %q is not k=v", errInvalidFlag, p)
		}
		switch prev := out[k].(type) {
		case nil:
			out[k] = v
		case string:
			out[k] = []string{prev, v}
		case []string:
			out[k] = append(prev, v)
		}
	}
	return out, nil
}

func parsePairs(pairs []string, sep string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, sep)
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q is not k%sv", errInvalidFlag, p, sep)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func readBody(data string) (json.RawMessage, error) {
	raw := []byte(data)
	if name, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: body is not valid JSON", errInvalidFlag)
	}
	return json.RawMessage(raw), nil
}

// printResponse prints the provider body, or notes an empty one on stderr.
func (a *app) printResponse(resp *types.Response) error {
	if resp.Empty() {
		fmt.Fprintf(a.errOut, "%s %d (empty body)\n", resp.Provider, resp.StatusCode)
		return nil
	}
	return a.printJSON(resp.Body)
}
