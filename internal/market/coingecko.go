package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	coinGeckoAttempts = 3
	coinGeckoKeyHdr   = "x-cg-demo-api-key"
)

// CoinGeckoFetcher reads quotes from the CoinGecko simple/price endpoint.
type CoinGeckoFetcher struct {
	baseURL string
	apiKey  string
	client  *http.Client
	backoff time.Duration
	log     *logrus.Entry
}

type coinGeckoPrice struct {
	USD       decimal.Decimal     `json:"usd"`
	Change24h decimal.NullDecimal `json:"usd_24h_change"`
	MarketCap decimal.NullDecimal `json:"usd_market_cap"`
	Vol24h    decimal.NullDecimal `json:"usd_24h_vol"`
}

type coinGeckoMarket struct {
	ID           string              `json:"id"`
	Symbol       string              `json:"symbol"`
	Name         string              `json:"name"`
	Rank         *int                `json:"market_cap_rank"`
	CurrentPrice decimal.NullDecimal `json:"current_price"`
	MarketCap    decimal.NullDecimal `json:"market_cap"`
	TotalVolume  decimal.NullDecimal `json:"total_volume"`
	Change24h    decimal.NullDecimal `json:"price_change_percentage_24h"`
	Change7d     decimal.NullDecimal `json:"price_change_percentage_7d_in_currency"`
}

func NewCoinGeckoFetcher(baseURL, apiKey string, timeout time.Duration, log *logrus.Entry) *CoinGeckoFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CoinGeckoFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		backoff: time.Second,
		log:     log,
	}
}

// SetBackoffUnit scales the pauses between attempts. A 429 waits
// 2*(attempt+1) units, other retryable failures wait one unit.
func (p *CoinGeckoFetcher) SetBackoffUnit(d time.Duration) {
	p.backoff = d
}

func (p *CoinGeckoFetcher) FetchQuotes(ctx context.Context, coinIDs []string) (map[string]PriceQuote, error) {
	if len(coinIDs) == 0 {
		return nil, fmt.Errorf("%w: coin ids is empty", ErrFetchFailed)
	}
	q := url.Values{}
	q.Set("ids", strings.Join(coinIDs, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_vol", "true")

	var raw map[string]coinGeckoPrice
	if err := p.getJSON(ctx, "/simple/price", q, &raw); err != nil {
		return nil, err
	}
	return toQuotes(raw, coinIDs), nil
}

// TopCoins lists coins by descending market cap.
func (p *CoinGeckoFetcher) TopCoins(ctx context.Context, limit, page int) ([]CoinMarket, error) {
	limit, page = ClampPage(limit, page)
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("page", strconv.Itoa(page))
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h,7d")

	var raw []coinGeckoMarket
	if err := p.getJSON(ctx, "/coins/markets", q, &raw); err != nil {
		return nil, err
	}
	out := make([]CoinMarket, 0, len(raw))
	for _, m := range raw {
		if m.ID == "" {
			continue
		}
		row := CoinMarket{
			ID:           m.ID,
			Symbol:       m.Symbol,
			Name:         m.Name,
			CurrentPrice: nullFloat(m.CurrentPrice),
			MarketCap:    nullFloat(m.MarketCap),
			TotalVolume:  nullFloat(m.TotalVolume),
			Change24hPct: nullFloat(m.Change24h),
			Change7dPct:  nullFloat(m.Change7d),
		}
		if m.Rank != nil {
			row.Rank = *m.Rank
		}
		out = append(out, row)
	}
	return out, nil
}

// getJSON GETs path with query and decodes the body into out, retrying
// rate limits and transient failures.
func (p *CoinGeckoFetcher) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(p.baseURL + path)
	if err != nil {
		return fmt.Errorf("%w: invalid base url: %w", ErrFetchFailed, err)
	}
	u.RawQuery = query.Encode()

	var lastErr error
	for attempt := 0; attempt < coinGeckoAttempts; attempt++ {
		wait, err := p.getOnce(ctx, u.String(), attempt, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if wait == 0 || attempt == coinGeckoAttempts-1 {
			break
		}
		p.log.WithError(err).WithFields(logrus.Fields{"attempt": attempt + 1, "path": path}).Warn("coingecko request failed, retrying")
		if err := sleepCtx(ctx, wait); err != nil {
			return fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrFetchFailed, lastErr)
}

// getOnce performs one request. A non-zero wait means the failure is worth
// retrying after that pause.
func (p *CoinGeckoFetcher) getOnce(ctx context.Context, endpoint string, attempt int, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set(coinGeckoKeyHdr, p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && shouldRetry(err) {
			return p.backoff, fmt.Errorf("request coingecko: %w", err)
		}
		return 0, fmt.Errorf("request coingecko: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return time.Duration(2*(attempt+1)) * p.backoff, fmt.Errorf("rate limited by coingecko")
	case resp.StatusCode >= http.StatusInternalServerError:
		return p.backoff, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if shouldRetry(err) {
			return p.backoff, fmt.Errorf("decode coingecko: %w", err)
		}
		return 0, fmt.Errorf("decode coingecko: %w", err)
	}
	return 0, nil
}

func toQuotes(raw map[string]coinGeckoPrice, coinIDs []string) map[string]PriceQuote {
	out := make(map[string]PriceQuote, len(coinIDs))
	for _, id := range coinIDs {
		data, ok := raw[id]
		if !ok {
			continue
		}
		usd := data.USD.InexactFloat64()
		if usd < 0 {
			continue
		}
		out[id] = PriceQuote{
			CoinID:       id,
			USD:          usd,
			USD24hChange: nullFloat(data.Change24h),
			MarketCap:    nullFloat(data.MarketCap),
			Vol24h:       nullFloat(data.Vol24h),
		}
	}
	return out
}

func nullFloat(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "reset by peer")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
