// Package connectors wraps frequently used provider calls in typed helpers.
// Every helper is one gateway call (the stock quote adds a single fallback
// hop) and returns the gateway's typed errors unchanged.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/enterprise-universe/universe-gateway/internal/gateway"
	"github.com/enterprise-universe/universe-gateway/internal/types"
)

// Caller is the gateway surface the helpers need. *gateway.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, providerKey, path string, opts gateway.CallOptions) (*types.Response, error)
}

// Provider keys used by the helpers.
const (
	AlphaVantage    = "finance.alphaVantage"
	Finnhub         = "finance.finnhub"
	CoinGecko       = "crypto.coinGecko"
	Frankfurter     = "currency.frankfurter"
	AbstractEmail   = "validation.abstractEmail"
	OpenWeatherMap  = "weather.openWeatherMap"
	WhatsApp        = "communication.whatsapp"
	Telegram        = "communication.telegram"
	HubSpot         = "business.hubspot"
	Anthropic       = "ai.anthropic"
	Lexoffice       = "buchhaltung.lexoffice"
	Sevdesk         = "buchhaltung.sevdesk"
	DHL             = "versand.dhl"
	Handelsregister = "unternehmen.handelsregister"
	Loxone          = "energie.loxone"
	ImmoScout24     = "immobilien.immoscout24"
)

type Connectors struct {
	gw Caller
}

func New(gw Caller) *Connectors {
	return &Connectors{gw: gw}
}

func (c *Connectors) get(ctx context.Context, provider, path string, params map[string]any) (*types.Response, error) {
	return c.gw.Call(ctx, provider, path, gateway.CallOptions{Method: "GET", Params: params})
}

func (c *Connectors) post(ctx context.Context, provider, path string, body any) (*types.Response, error) {
	return c.gw.Call(ctx, provider, path, gateway.CallOptions{Method: "POST", Body: body})
}

// decode unmarshals a successful response body into a T.
func decode[T any](resp *types.Response, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", resp.Provider, resp.Path, err)
	}
	return &out, nil
}

// StockQuote asks Alpha Vantage and falls back to Finnhub once. The fallback
// is skipped when the caller cancelled.
func (c *Connectors) StockQuote(ctx context.Context, symbol string) (*types.Response, error) {
	resp, err := c.get(ctx, AlphaVantage, "", map[string]any{"function": "GLOBAL_QUOTE", "symbol": symbol})
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	fallback, ferr := c.get(ctx, Finnhub, "/quote", map[string]any{"symbol": symbol})
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fallback, nil
}

// CryptoPrices maps coin id -> currency -> price.
type CryptoPrices map[string]map[string]float64

func (c *Connectors) CryptoPrice(ctx context.Context, coinID string) (*CryptoPrices, error) {
	return decode[CryptoPrices](c.get(ctx, CoinGecko, "/simple/price", map[string]any{
		"ids":           coinID,
		"vs_currencies": "usd,eur",
	}))
}

type ExchangeRates struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

func (c *Connectors) ExchangeRates(ctx context.Context, base string) (*ExchangeRates, error) {
	if base == "" {
		base = "EUR"
	}
	return decode[ExchangeRates](c.get(ctx, Frankfurter, "/latest", map[string]any{"from": base}))
}

func (c *Connectors) ValidateEmail(ctx context.Context, email string) (*types.Response, error) {
	return c.get(ctx, AbstractEmail, "", map[string]any{"email": email})
}

type Weather struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

func (c *Connectors) Weather(ctx context.Context, city string) (*Weather, error) {
	return decode[Weather](c.get(ctx, OpenWeatherMap, "/weather", map[string]any{"q": city, "units": "metric"}))
}

func (c *Connectors) SendWhatsApp(ctx context.Context, phoneID, to, message string) (*types.Response, error) {
	return c.post(ctx, WhatsApp, "/"+url.PathEscape(phoneID)+"/messages", map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": message},
	})
}

func (c *Connectors) SendTelegram(ctx context.Context, chatID any, text string) (*types.Response, error) {
	return c.post(ctx, Telegram, "/sendMessage", map[string]any{"chat_id": chatID, "text": text})
}

func (c *Connectors) HubSpotContacts(ctx context.Context, limit int) (*types.Response, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.get(ctx, HubSpot, "/crm/v3/objects/contacts", map[string]any{"limit": limit})
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const DefaultChatModel = "claude-3-haiku-20240307"

func (c *Connectors) AIChat(ctx context.Context, messages []ChatMessage, model string) (*types.Response, error) {
	if model == "" {
		model = DefaultChatModel
	}
	return c.post(ctx, Anthropic, "/messages", map[string]any{
		"model":      model,
		"max_tokens": 1024,
		"messages":   messages,
	})
}
