package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"bitcoin", "ethereum"}, Dedupe([]string{"bitcoin", "bitcoin", "ethereum"}))
	assert.Equal(t, []string{"bitcoin", "solana"}, Dedupe([]string{" Bitcoin", "", "BITCOIN ", "solana"}))
	assert.Empty(t, Dedupe(nil))
}

func TestMockFetcher(t *testing.T) {
	t.Run("returns a quote per id", func(t *testing.T) {
		f := NewMockFetcher(0, WithSeed(7))
		quotes, err := f.FetchQuotes(context.Background(), []string{"bitcoin", "ethereum"})
		require.NoError(t, err)
		require.Len(t, quotes, 2)
		for id, q := range quotes {
			assert.Equal(t, id, q.CoinID)
			assert.GreaterOrEqual(t, q.USD, 0.0)
			assert.Less(t, q.USD, mockMaxPrice)
			assert.GreaterOrEqual(t, q.USD24hChange, -mockMaxChange)
			assert.Less(t, q.USD24hChange, mockMaxChange)
			assert.GreaterOrEqual(t, q.MarketCap, q.USD*mockMinSupply)
			assert.LessOrEqual(t, q.Vol24h, q.MarketCap*mockMaxTurnover)
		}
	})

	t.Run("honors cancellation during latency", func(t *testing.T) {
		f := NewMockFetcher(time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.FetchQuotes(ctx, []string{"bitcoin"})
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("fail rate one always rejects", func(t *testing.T) {
		f := NewMockFetcher(0, WithFailRate(1))
		_, err := f.FetchQuotes(context.Background(), []string{"bitcoin"})
		assert.ErrorIs(t, err, ErrFetchFailed)
	})
}

func newTestCoinGecko(url string) *CoinGeckoFetcher {
	f := NewCoinGeckoFetcher(url, "demo-key", time.Second, nil)
	f.SetBackoffUnit(time.Millisecond)
	return f
}

func TestCoinGeckoFetcher(t *testing.T) {
	t.Run("decodes quotes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/simple/price", r.URL.Path)
			assert.Equal(t, "bitcoin,ethereum,nope", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			assert.Equal(t, "true", r.URL.Query().Get("include_24hr_change"))
			assert.Equal(t, "true", r.URL.Query().Get("include_market_cap"))
			assert.Equal(t, "true", r.URL.Query().Get("include_24hr_vol"))
			assert.Equal(t, "demo-key", r.Header.Get(coinGeckoKeyHdr))
			fmt.Fprint(w, `{"bitcoin":{"usd":67187.3358,"usd_24h_change":-1.25,"usd_market_cap":1321234567890.5,"usd_24h_vol":28123456789},"ethereum":{"usd":3120.5,"usd_24h_change":null}}`)
		}))
		defer srv.Close()

		quotes, err := newTestCoinGecko(srv.URL).FetchQuotes(context.Background(), []string{"bitcoin", "ethereum", "nope"})
		require.NoError(t, err)
		require.Len(t, quotes, 2)
		assert.InDelta(t, 67187.3358, quotes["bitcoin"].USD, 1e-9)
		assert.InDelta(t, -1.25, quotes["bitcoin"].USD24hChange, 1e-9)
		assert.InDelta(t, 1321234567890.5, quotes["bitcoin"].MarketCap, 1e-3)
		assert.InDelta(t, 28123456789.0, quotes["bitcoin"].Vol24h, 1e-3)
		assert.Equal(t, 0.0, quotes["ethereum"].USD24hChange)
		assert.Equal(t, 0.0, quotes["ethereum"].MarketCap)
	})

	t.Run("lists top coins", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/coins/markets", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "usd", q.Get("vs_currency"))
			assert.Equal(t, "market_cap_desc", q.Get("order"))
			assert.Equal(t, "2", q.Get("per_page"))
			assert.Equal(t, "3", q.Get("page"))
			assert.Equal(t, "24h,7d", q.Get("price_change_percentage"))
			fmt.Fprint(w, `[
				{"id":"bitcoin","symbol":"btc","name":"Bitcoin","market_cap_rank":1,"current_price":67000,"market_cap":1.3e12,"total_volume":2.8e10,"price_change_percentage_24h":-1.5,"price_change_percentage_7d_in_currency":4.25},
				{"id":"newcoin","symbol":"new","name":"New","market_cap_rank":null,"current_price":0.5,"market_cap":null,"total_volume":10,"price_change_percentage_24h":null}
			]`)
		}))
		defer srv.Close()

		coins, err := newTestCoinGecko(srv.URL).TopCoins(context.Background(), 2, 3)
		require.NoError(t, err)
		require.Len(t, coins, 2)
		assert.Equal(t, CoinMarket{
			ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", Rank: 1,
			CurrentPrice: 67000, MarketCap: 1.3e12, TotalVolume: 2.8e10,
			Change24hPct: -1.5, Change7dPct: 4.25,
		}, coins[0])
		assert.Equal(t, 0, coins[1].Rank)
		assert.Equal(t, 0.0, coins[1].MarketCap)
		assert.Equal(t, 10.0, coins[1].TotalVolume)
	})

	t.Run("retries after rate limit", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, `{"bitcoin":{"usd":1,"usd_24h_change":2}}`)
		}))
		defer srv.Close()

		quotes, err := newTestCoinGecko(srv.URL).FetchQuotes(context.Background(), []string{"bitcoin"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.Equal(t, 1.0, quotes["bitcoin"].USD)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestCoinGecko(srv.URL).FetchQuotes(context.Background(), []string{"bitcoin"})
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("server errors exhaust attempts", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestCoinGecko(srv.URL).FetchQuotes(context.Background(), []string{"bitcoin"})
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.Equal(t, int32(coinGeckoAttempts), atomic.LoadInt32(&calls))
	})

	t.Run("empty ids", func(t *testing.T) {
		_, err := newTestCoinGecko("http://127.0.0.1:1").FetchQuotes(context.Background(), nil)
		assert.ErrorIs(t, err, ErrFetchFailed)
	})
}

type stubFetcher struct {
	quotes map[string]PriceQuote
	err    error
	calls  int
}

func (s *stubFetcher) FetchQuotes(_ context.Context, _ []string) (map[string]PriceQuote, error) {
	s.calls++
	return s.quotes, s.err
}

func TestMultiFetcher(t *testing.T) {
	failing := &stubFetcher{err: fmt.Errorf("%w: down", ErrFetchFailed)}
	ok := &stubFetcher{quotes: map[string]PriceQuote{"bitcoin": {CoinID: "bitcoin", USD: 10}}}

	quotes, err := NewMultiFetcher(failing, ok).FetchQuotes(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	assert.Equal(t, 10.0, quotes["bitcoin"].USD)
	assert.Equal(t, 1, failing.calls)

	_, err = NewMultiFetcher(failing).FetchQuotes(context.Background(), []string{"bitcoin"})
	assert.True(t, errors.Is(err, ErrFetchFailed))

	_, err = NewMultiFetcher().FetchQuotes(context.Background(), []string{"bitcoin"})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestThrottledFetcher(t *testing.T) {
	upstream := &stubFetcher{quotes: map[string]PriceQuote{"bitcoin": {CoinID: "bitcoin", USD: 10}}}
	f := NewThrottledFetcher(upstream, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	f.now = func() time.Time { return now }

	_, err := f.FetchQuotes(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	_, err = f.FetchQuotes(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls, "second call inside the interval is cached")

	_, err = f.FetchQuotes(context.Background(), []string{"ethereum"})
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls, "cache miss goes upstream")

	now = now.Add(2 * time.Minute)
	upstream.err = fmt.Errorf("%w: down", ErrFetchFailed)
	_, err = f.FetchQuotes(context.Background(), []string{"bitcoin"})
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 1, f.ConsecutiveFailures())
}

func TestMockTopCoins(t *testing.T) {
	f := NewMockFetcher(0, WithSeed(3))

	first, err := f.TopCoins(context.Background(), 5, 1)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for i, c := range first {
		assert.Equal(t, i+1, c.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, first[i-1].MarketCap, c.MarketCap)
		}
	}

	last, err := f.TopCoins(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Len(t, last, len(mockCatalog)-10)

	beyond, err := f.TopCoins(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestSortCoins(t *testing.T) {
	coins := []CoinMarket{
		{ID: "a", MarketCap: 3, TotalVolume: 1, Change24hPct: -2, Change7dPct: 9},
		{ID: "b", MarketCap: 2, TotalVolume: 5, Change24hPct: 7, Change7dPct: 1},
		{ID: "c", MarketCap: 1, TotalVolume: 3, Change24hPct: 0, Change7dPct: 4},
	}
	ids := func() []string {
		var out []string
		for _, c := range coins {
			out = append(out, c.ID)
		}
		return out
	}

	SortCoins(coins, SortVolume)
	assert.Equal(t, []string{"b", "c", "a"}, ids())
	SortCoins(coins, SortChange24h)
	assert.Equal(t, []string{"b", "c", "a"}, ids())
	SortCoins(coins, SortChange7d)
	assert.Equal(t, []string{"a", "c", "b"}, ids())
	SortCoins(coins, SortMarketCap)
	assert.Equal(t, []string{"a", "b", "c"}, ids())
}

func TestParseSortKey(t *testing.T) {
	for in, want := range map[string]SortKey{
		"":             SortMarketCap,
		"market_cap":   SortMarketCap,
		" Volume ":     SortVolume,
		"price_change": SortChange24h,
		"24h_change":   SortChange24h,
		"7d_change":    SortChange7d,
	} {
		got, err := ParseSortKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSortKey("alphabetical")
	assert.ErrorIs(t, err, ErrUnknownSort)
}

func TestClampPage(t *testing.T) {
	limit, page := ClampPage(0, 0)
	assert.Equal(t, DefaultTopLimit, limit)
	assert.Equal(t, 1, page)
	limit, _ = ClampPage(1000, 2)
	assert.Equal(t, MaxTopLimit, limit)
}

type stubLister struct {
	stubFetcher
	coins []CoinMarket
	err   error
	pages int
}

func (s *stubLister) TopCoins(_ context.Context, _, _ int) ([]CoinMarket, error) {
	s.pages++
	return s.coins, s.err
}

func TestTopCoinsThroughWrappers(t *testing.T) {
	listing := []CoinMarket{{ID: "bitcoin", Rank: 1}}
	failing := &stubLister{err: fmt.Errorf("%w: down", ErrFetchFailed)}
	ok := &stubLister{coins: listing}

	multi := NewMultiFetcher(&stubFetcher{}, failing, ok)
	coins, err := multi.TopCoins(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, listing, coins)

	_, err = NewMultiFetcher(&stubFetcher{}).TopCoins(context.Background(), 10, 1)
	assert.ErrorIs(t, err, ErrFetchFailed)

	throttled := NewThrottledFetcher(ok, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	throttled.now = func() time.Time { return now }
	ok.pages = 0

	_, err = throttled.TopCoins(context.Background(), 10, 1)
	require.NoError(t, err)
	_, err = throttled.TopCoins(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, ok.pages, "same page inside the interval is cached")

	_, err = throttled.TopCoins(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, ok.pages)

	now = now.Add(2 * time.Minute)
	_, err = throttled.TopCoins(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, ok.pages)

	_, err = NewThrottledFetcher(&stubFetcher{}, 0).TopCoins(context.Background(), 10, 1)
	assert.ErrorIs(t, err, ErrFetchFailed)
}
