package market

import (
	"context"
	"fmt"
)

// MultiFetcher tries each fetcher in order and returns the first
// non-empty result.
type MultiFetcher struct {
	fetchers []Fetcher
}

func NewMultiFetcher(fetchers ...Fetcher) *MultiFetcher {
	return &MultiFetcher{fetchers: fetchers}
}

func (m *MultiFetcher) FetchQuotes(ctx context.Context, coinIDs []string) (map[string]PriceQuote, error) {
	if len(m.fetchers) == 0 {
		return nil, fmt.Errorf("%w: no fetchers configured", ErrFetchFailed)
	}
	var lastErr error
	for _, f := range m.fetchers {
		quotes, err := f.FetchQuotes(ctx, coinIDs)
		if err == nil && len(quotes) > 0 {
			return quotes, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, ctx.Err())
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: all fetchers returned no quotes", ErrFetchFailed)
	}
	return nil, lastErr
}

// TopCoins asks each fetcher that can list markets, in order, and returns
// the first non-empty page.
func (m *MultiFetcher) TopCoins(ctx context.Context, limit, page int) ([]CoinMarket, error) {
	var lastErr error
	for _, f := range m.fetchers {
		lister, ok := f.(MarketLister)
		if !ok {
			continue
		}
		coins, err := lister.TopCoins(ctx, limit, page)
		if err == nil && len(coins) > 0 {
			return coins, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, ctx.Err())
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: no market listing available", ErrFetchFailed)
	}
	return nil, lastErr
}
