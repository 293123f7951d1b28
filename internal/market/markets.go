package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultTopLimit = 50
	MaxTopLimit     = 250
)

var ErrUnknownSort = errors.New("unknown sort key")

// CoinMarket is one row of the market leaderboard.
type CoinMarket struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Rank         int     `json:"market_cap_rank"`
	CurrentPrice float64 `json:"current_price"`
	MarketCap    float64 `json:"market_cap"`
	TotalVolume  float64 `json:"total_volume"`
	Change24hPct float64 `json:"price_change_percentage_24h"`
	Change7dPct  float64 `json:"price_change_percentage_7d"`
}

// MarketLister lists coins by market cap, one page at a time.
type MarketLister interface {
	TopCoins(ctx context.Context, limit, page int) ([]CoinMarket, error)
}

type SortKey string

const (
	SortMarketCap SortKey = "market_cap"
	SortVolume    SortKey = "volume"
	SortChange24h SortKey = "price_change"
	SortChange7d  SortKey = "7d_change"
)

// ParseSortKey accepts the leaderboard sort names. Empty means market cap;
// "24h_change" is an alias of "price_change".
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortMarketCap, nil
	case "24h_change":
		return SortChange24h, nil
	case SortMarketCap, SortVolume, SortChange24h, SortChange7d:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSort, s)
}

// SortCoins orders coins descending by key. Ties keep their input order.
func SortCoins(coins []CoinMarket, key SortKey) {
	var val func(c CoinMarket) float64
	switch key {
	case SortVolume:
		val = func(c CoinMarket) float64 { return c.TotalVolume }
	case SortChange24h:
		val = func(c CoinMarket) float64 { return c.Change24hPct }
	case SortChange7d:
		val = func(c CoinMarket) float64 { return c.Change7dPct }
	default:
		val = func(c CoinMarket) float64 { return c.MarketCap }
	}
	sort.SliceStable(coins, func(i, j int) bool {
		return val(coins[i]) > val(coins[j])
	})
}

// ClampPage normalizes leaderboard paging arguments.
func ClampPage(limit, page int) (int, int) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if limit > MaxTopLimit {
		limit = MaxTopLimit
	}
	if page <= 0 {
		page = 1
	}
	return limit, page
}
