package connectors

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Snapshot is a combined market view for a dashboard tile.
type Snapshot struct {
	Crypto  *CryptoPrices
	Rates   *ExchangeRates
	Weather *Weather
}

// MarketSnapshot fetches crypto price, exchange rates and weather
// concurrently. The first failure cancels the other calls and is returned.
func (c *Connectors) MarketSnapshot(ctx context.Context, coinID, base, city string) (*Snapshot, error) {
	g, ctx := errgroup.WithContext(ctx)
	var snap Snapshot

	g.Go(func() error {
		p, err := c.CryptoPrice(ctx, coinID)
		if err != nil {
			return fmt.Errorf("crypto price: %w", err)
		}
		snap.Crypto = p
		return nil
	})
	g.Go(func() error {
		r, err := c.ExchangeRates(ctx, base)
		if err != nil {
			return fmt.Errorf("exchange rates: %w", err)
		}
		snap.Rates = r
		return nil
	})
	g.Go(func() error {
		w, err := c.Weather(ctx, city)
		if err != nil {
			return fmt.Errorf("weather: %w", err)
		}
		snap.Weather = w
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}
