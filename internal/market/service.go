package market

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ThrottledFetcher keeps the upstream from being hit more than once per
// minInterval. Calls inside the interval are answered from the last
// results when every requested id is cached; otherwise they go upstream.
type ThrottledFetcher struct {
	next        Fetcher
	minInterval time.Duration
	now         func() time.Time

	mu                  sync.Mutex
	lastFetch           time.Time
	cache               map[string]PriceQuote
	pages               map[string]cachedPage
	consecutiveFailures int
}

type cachedPage struct {
	at    time.Time
	coins []CoinMarket
}

func NewThrottledFetcher(next Fetcher, minInterval time.Duration) *ThrottledFetcher {
	if minInterval < 0 {
		minInterval = 0
	}
	return &ThrottledFetcher{
		next:        next,
		minInterval: minInterval,
		now:         time.Now,
		cache:       make(map[string]PriceQuote),
		pages:       make(map[string]cachedPage),
	}
}

func (s *ThrottledFetcher) FetchQuotes(ctx context.Context, coinIDs []string) (map[string]PriceQuote, error) {
	s.mu.Lock()
	if s.minInterval > 0 && s.now().Sub(s.lastFetch) < s.minInterval {
		if cached, ok := s.fromCacheLocked(coinIDs); ok {
			s.mu.Unlock()
			return cached, nil
		}
	}
	s.mu.Unlock()

	quotes, err := s.next.FetchQuotes(ctx, coinIDs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.consecutiveFailures++
		return nil, err
	}
	for id, q := range quotes {
		s.cache[id] = q
	}
	s.lastFetch = s.now()
	s.consecutiveFailures = 0
	return quotes, nil
}

// ConsecutiveFailures reports how many upstream calls failed in a row.
func (s *ThrottledFetcher) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

func (s *ThrottledFetcher) fromCacheLocked(coinIDs []string) (map[string]PriceQuote, bool) {
	out := make(map[string]PriceQuote, len(coinIDs))
	for _, id := range coinIDs {
		q, ok := s.cache[id]
		if !ok {
			return nil, false
		}
		out[id] = q
	}
	return out, true
}

// TopCoins lists markets through the wrapped fetcher, reusing a page
// fetched within minInterval.
func (s *ThrottledFetcher) TopCoins(ctx context.Context, limit, page int) ([]CoinMarket, error) {
	lister, ok := s.next.(MarketLister)
	if !ok {
		return nil, fmt.Errorf("%w: market listing not supported", ErrFetchFailed)
	}
	limit, page = ClampPage(limit, page)
	key := fmt.Sprintf("%d:%d", limit, page)

	s.mu.Lock()
	if p, ok := s.pages[key]; ok && s.minInterval > 0 && s.now().Sub(p.at) < s.minInterval {
		s.mu.Unlock()
		return append([]CoinMarket(nil), p.coins...), nil
	}
	s.mu.Unlock()

	coins, err := lister.TopCoins(ctx, limit, page)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.consecutiveFailures++
		return nil, err
	}
	s.consecutiveFailures = 0
	s.pages[key] = cachedPage{at: s.now(), coins: coins}
	return append([]CoinMarket(nil), coins...), nil
}
