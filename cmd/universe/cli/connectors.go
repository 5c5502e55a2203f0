package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/enterprise-universe/universe-gateway/internal/connectors"
)

const connectorTimeout = 30 * time.Second

func newQuoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <symbol>",
		Short: "Stock quote from Alpha Vantage, falling back to Finnhub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			client, err := a.client(ctx, connectorTimeout)
			if err != nil {
				return a.fail(err)
			}
			resp, err := connectors.New(client).StockQuote(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return a.fail(err)
			}
			return a.printResponse(resp)
		},
	}
}

func newWeatherCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "weather <city>",
		Short: "Current weather from OpenWeatherMap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			client, err := a.client(ctx, connectorTimeout)
			if err != nil {
				return a.fail(err)
			}
			w, err := connectors.New(client).Weather(ctx, args[0])
			if err != nil {
				return a.fail(err)
			}
			return a.printJSON(w)
		},
	}
}

func newSnapshotCmd(a *app) *cobra.Command {
	var coin, base, city string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Crypto price, exchange rates and weather fetched concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			client, err := a.client(ctx, connectorTimeout)
			if err != nil {
				return a.fail(err)
			}
			snap, err := connectors.New(client).MarketSnapshot(ctx, coin, base, city)
			if err != nil {
				return a.fail(err)
			}
			return a.printJSON(snap)
		},
	}
	f := cmd.Flags()
	f.StringVar(&coin, "coin", "bitcoin", "CoinGecko coin id")
	f.StringVar(&base, "base", "EUR", "base currency for exchange rates")
	f.StringVar(&city, "city", "Berlin", "city for the weather")
	return cmd
}

func newTelegramCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Telegram Bot API helpers",
	}
	send := &cobra.Command{
		Use:   "send <chat-id> <text...>",
		Short: "Send a text message through the configured bot",
		Example: `  universe telegram send 123456789 "deploy finished"
  universe telegram send @ops-channel build green`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" {
				return a.fail(fmt.Errorf("%w: message text is empty", errInvalidFlag))
			}
			ctx := cmdContext(cmd)
			client, err := a.client(ctx, connectorTimeout)
			if err != nil {
				return a.fail(err)
			}
			resp, err := connectors.New(client).SendTelegram(ctx, chatID(args[0]), text)
			if err != nil {
				return a.fail(err)
			}
			return a.printResponse(resp)
		},
	}
	cmd.AddCommand(send)
	return cmd
}

// chatID sends numeric ids as numbers and channel names (@name) as strings.
func chatID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
