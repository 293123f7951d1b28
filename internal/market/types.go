package market

import (
	"context"
	"errors"
	"strings"
)

// ErrFetchFailed wraps every error returned by a Fetcher.
var ErrFetchFailed = errors.New("fetch quotes failed")

// PriceQuote is one coin's price, 24h change, market cap and 24h volume
// at fetch time. Figures the upstream does not report are zero.
type PriceQuote struct {
	CoinID       string  `json:"coin_id"`
	USD          float64 `json:"usd"`
	USD24hChange float64 `json:"usd_24h_change"`
	MarketCap    float64 `json:"usd_market_cap"`
	Vol24h       float64 `json:"usd_24h_vol"`
}

// Fetcher resolves quotes for a de-duplicated set of coin ids.
type Fetcher interface {
	FetchQuotes(ctx context.Context, coinIDs []string) (map[string]PriceQuote, error)
}

// Dedupe normalizes coin ids (trimmed, lower case, no empties) and drops
// repeats, keeping first-seen order.
func Dedupe(coinIDs []string) []string {
	seen := make(map[string]struct{}, len(coinIDs))
	out := make([]string, 0, len(coinIDs))
	for _, id := range coinIDs {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
