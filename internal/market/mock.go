package market

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	mockMaxPrice    = 50000.0
	mockMaxChange   = 10.0
	mockMinSupply   = 1e6
	mockMaxSupply   = 1e9
	mockMaxTurnover = 0.25
)

// mockCatalog is the coin universe MockFetcher lists in TopCoins.
var mockCatalog = []struct{ id, symbol, name string }{
	{"bitcoin", "btc", "Bitcoin"},
	{"ethereum", "eth", "Ethereum"},
	{"tether", "usdt", "Tether"},
	{"binancecoin", "bnb", "BNB"},
	{"solana", "sol", "Solana"},
	{"ripple", "xrp", "XRP"},
	{"usd-coin", "usdc", "USDC"},
	{"cardano", "ada", "Cardano"},
	{"dogecoin", "doge", "Dogecoin"},
	{"tron", "trx", "TRON"},
	{"avalanche-2", "avax", "Avalanche"},
	{"polkadot", "dot", "Polkadot"},
}

// MockFetcher stands in for a price API: it sleeps for the configured
// latency and returns random quotes.
type MockFetcher struct {
	latency  time.Duration
	failRate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

type MockOption func(*MockFetcher)

// WithFailRate makes a share of calls (0..1) reject.
func WithFailRate(rate float64) MockOption {
	return func(m *MockFetcher) {
		m.failRate = rate
	}
}

// WithSeed makes the generated quotes reproducible.
func WithSeed(seed uint64) MockOption {
	return func(m *MockFetcher) {
		m.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func NewMockFetcher(latency time.Duration, opts ...MockOption) *MockFetcher {
	if latency < 0 {
		latency = 0
	}
	m := &MockFetcher{
		latency: latency,
		rnd:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockFetcher) FetchQuotes(ctx context.Context, coinIDs []string) (map[string]PriceQuote, error) {
	if err := m.await(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLocked() {
		return nil, fmt.Errorf("%w: simulated network error", ErrFetchFailed)
	}
	out := make(map[string]PriceQuote, len(coinIDs))
	for _, id := range coinIDs {
		out[id] = m.quoteLocked(id)
	}
	return out, nil
}

// TopCoins returns a page of the built-in catalog ranked by market cap.
func (m *MockFetcher) TopCoins(ctx context.Context, limit, page int) ([]CoinMarket, error) {
	limit, page = ClampPage(limit, page)
	if err := m.await(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.failLocked() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: simulated network error", ErrFetchFailed)
	}
	rows := make([]CoinMarket, 0, len(mockCatalog))
	for _, c := range mockCatalog {
		q := m.quoteLocked(c.id)
		rows = append(rows, CoinMarket{
			ID:           c.id,
			Symbol:       c.symbol,
			Name:         c.name,
			CurrentPrice: q.USD,
			MarketCap:    q.MarketCap,
			TotalVolume:  q.Vol24h,
			Change24hPct: q.USD24hChange,
			Change7dPct:  (m.rnd.Float64()*2 - 1) * 2 * mockMaxChange,
		})
	}
	m.mu.Unlock()

	SortCoins(rows, SortMarketCap)
	for i := range rows {
		rows[i].Rank = i + 1
	}
	from := (page - 1) * limit
	if from >= len(rows) {
		return []CoinMarket{}, nil
	}
	return rows[from:min(from+limit, len(rows))], nil
}

func (m *MockFetcher) await(ctx context.Context) error {
	if m.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
		return nil
	}
	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrFetchFailed, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *MockFetcher) failLocked() bool {
	return m.failRate > 0 && m.rnd.Float64() < m.failRate
}

func (m *MockFetcher) quoteLocked(id string) PriceQuote {
	price := m.rnd.Float64() * mockMaxPrice
	mcap := price * (mockMinSupply + m.rnd.Float64()*(mockMaxSupply-mockMinSupply))
	return PriceQuote{
		CoinID:       id,
		USD:          price,
		USD24hChange: (m.rnd.Float64()*2 - 1) * mockMaxChange,
		MarketCap:    mcap,
		Vol24h:       mcap * m.rnd.Float64() * mockMaxTurnover,
	}
}
