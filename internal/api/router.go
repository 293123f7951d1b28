package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/sirupsen/logrus"

	"crypto-dashboard/internal/format"
	"crypto-dashboard/internal/market"
	"crypto-dashboard/internal/notify"
	"crypto-dashboard/internal/page"
	"crypto-dashboard/internal/prefs"
	"crypto-dashboard/internal/refresh"
	"crypto-dashboard/internal/render"
)

const fetchTimeout = 15 * time.Second

type Deps struct {
	Fetcher      market.Fetcher
	Markets      market.MarketLister
	Pipeline     *refresh.Pipeline
	Registry     *render.Registry
	Page         *page.Page
	Notifier     *notify.Center
	Prefs        *prefs.Service
	Formatter    *format.Formatter
	DefaultCoins []string
	Log          *logrus.Entry
}

type elementRequest struct {
	CoinID string `json:"coin_id"`
	Role   string `json:"role"`
}

// coinRow is a leaderboard row with its display strings.
type coinRow struct {
	market.CoinMarket
	PriceText     string `json:"price_text"`
	ChangeText    string `json:"change_text"`
	MarketCapText string `json:"market_cap_text"`
	VolumeText    string `json:"volume_text"`
}

type notifyRequest struct {
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	DurationMs int    `json:"duration_ms"`
}

func RegisterRoutes(h *server.Hertz, d Deps) {
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if d.Formatter == nil {
		d.Formatter = format.New(format.DefaultLocale)
	}

	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	v1 := h.Group("/api/v1")

	v1.GET("/quotes", func(ctx context.Context, c *app.RequestContext) {
		ids := market.Dedupe(parseCoins(c.Query("ids"), d.DefaultCoins))
		if len(ids) == 0 {
			fail(c, http.StatusBadRequest, "ids is empty")
			return
		}
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		quotes, err := d.Fetcher.FetchQuotes(fetchCtx, ids)
		if err != nil {
			d.Log.WithError(err).Warn("quotes request failed")
			fail(c, http.StatusBadGateway, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":     true,
			"ids":    ids,
			"quotes": quotes,
		})
	})

	v1.GET("/coins/top", func(ctx context.Context, c *app.RequestContext) {
		if d.Markets == nil {
			fail(c, http.StatusNotImplemented, "market listing not configured")
			return
		}
		sortKey, err := market.ParseSortKey(c.Query("sort"))
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		limit, err := queryInt(c, "limit")
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid limit")
			return
		}
		page, err := queryInt(c, "page")
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid page")
			return
		}
		limit, page = market.ClampPage(limit, page)

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		coins, err := d.Markets.TopCoins(fetchCtx, limit, page)
		if err != nil {
			d.Log.WithError(err).Warn("top coins request failed")
			fail(c, http.StatusBadGateway, err.Error())
			return
		}
		market.SortCoins(coins, sortKey)

		rows := make([]coinRow, 0, len(coins))
		for _, m := range coins {
			rows = append(rows, coinRow{
				CoinMarket:    m,
				PriceText:     d.Formatter.Price(m.CurrentPrice),
				ChangeText:    d.Formatter.Percent(m.Change24hPct),
				MarketCapText: d.Formatter.CompactUSD(m.MarketCap),
				VolumeText:    d.Formatter.CompactUSD(m.TotalVolume),
			})
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":    true,
			"sort":  sortKey,
			"limit": limit,
			"page":  page,
			"items": rows,
		})
	})

	v1.GET("/elements", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{
			"ok":    true,
			"items": d.Registry.Views(),
		})
	})

	v1.POST("/elements", func(_ context.Context, c *app.RequestContext) {
		var req elementRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		role, err := render.ParseRole(req.Role)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		el, err := d.Registry.Register(req.CoinID, role)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":      true,
			"element": el.View(),
		})
	})

	v1.DELETE("/elements/:id", func(_ context.Context, c *app.RequestContext) {
		if !d.Registry.Remove(c.Param("id")) {
			fail(c, http.StatusNotFound, "element not found")
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	v1.POST("/refresh", func(ctx context.Context, c *app.RequestContext) {
		refreshCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		if err := d.Pipeline.RefreshNow(refreshCtx); err != nil {
			fail(c, http.StatusBadGateway, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":    true,
			"items": d.Registry.Views(),
		})
	})

	v1.GET("/page", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{
			"ok":    true,
			"state": d.Page.State(),
		})
	})

	v1.POST("/page/enter", func(_ context.Context, c *app.RequestContext) {
		var req struct {
			Route string `json:"route"`
		}
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		pageResult(c, d.Page, d.Page.Enter(req.Route))
	})

	v1.POST("/page/navigate", func(_ context.Context, c *app.RequestContext) {
		var req struct {
			Route string `json:"route"`
		}
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		pageResult(c, d.Page, d.Page.Navigate(req.Route))
	})

	v1.POST("/page/visibility", func(_ context.Context, c *app.RequestContext) {
		var req struct {
			Visible bool `json:"visible"`
		}
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		pageResult(c, d.Page, d.Page.SetVisible(req.Visible))
	})

	v1.POST("/page/network", func(_ context.Context, c *app.RequestContext) {
		var req struct {
			Online bool `json:"online"`
		}
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		pageResult(c, d.Page, d.Page.SetOnline(req.Online))
	})

	v1.GET("/notifications", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{
			"ok":    true,
			"items": d.Notifier.Active(),
		})
	})

	v1.POST("/notifications", func(_ context.Context, c *app.RequestContext) {
		var req notifyRequest
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			fail(c, http.StatusBadRequest, "message is required")
			return
		}
		n := d.Notifier.Notify(req.Message, notify.ParseSeverity(req.Severity), time.Duration(req.DurationMs)*time.Millisecond)
		c.JSON(http.StatusOK, map[string]any{
			"ok":           true,
			"notification": n,
		})
	})

	v1.DELETE("/notifications/:id", func(_ context.Context, c *app.RequestContext) {
		if !d.Notifier.Dismiss(c.Param("id")) {
			fail(c, http.StatusNotFound, "notification not found")
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	v1.GET("/prefs", func(_ context.Context, c *app.RequestContext) {
		theme, err := d.Prefs.Theme()
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		visited, err := d.Prefs.Visited()
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{
			"ok":          true,
			"theme":       theme,
			"first_visit": !visited,
		})
	})

	v1.PUT("/prefs/theme", func(_ context.Context, c *app.RequestContext) {
		var req struct {
			Theme string `json:"theme"`
		}
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := d.Prefs.SetTheme(req.Theme); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, prefs.ErrInvalidTheme) {
				status = http.StatusBadRequest
			}
			fail(c, status, err.Error())
			return
		}
		theme, _ := d.Prefs.Theme()
		c.JSON(http.StatusOK, map[string]any{"ok": true, "theme": theme})
	})

	v1.POST("/prefs/theme/toggle", func(_ context.Context, c *app.RequestContext) {
		theme, err := d.Prefs.ToggleTheme()
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "theme": theme})
	})

	v1.POST("/copy", func(_ context.Context, c *app.RequestContext) {
		var req struct {
			ElementID string `json:"element_id"`
		}
		if err := c.BindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json body")
			return
		}
		text, err := d.Page.Copy(req.ElementID)
		if err != nil {
			fail(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "text": text})
	})

	v1.GET("/format", func(_ context.Context, c *app.RequestContext) {
		v, err := strconv.ParseFloat(c.Query("value"), 64)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid value")
			return
		}
		var out string
		switch kind := c.Query("kind"); kind {
		case "", "price":
			out = d.Formatter.Price(v)
		case "percent":
			out = d.Formatter.Percent(v)
		case "large":
			out = d.Formatter.LargeNumber(v)
		default:
			fail(c, http.StatusBadRequest, "unknown kind: "+kind)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "text": out})
	})
}

func fail(c *app.RequestContext, status int, msg string) {
	c.JSON(status, map[string]any{
		"ok":    false,
		"error": msg,
	})
}

func pageResult(c *app.RequestContext, p *page.Page, err error) {
	if errors.Is(err, page.ErrClosed) {
		fail(c, http.StatusGone, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, map[string]any{
		"ok":    true,
		"state": p.State(),
	})
}

func queryInt(c *app.RequestContext, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseCoins(raw string, defaults []string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaults
	}
	return strings.Split(raw, ",")
}
