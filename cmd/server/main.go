package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/sirupsen/logrus"

	"crypto-dashboard/internal/api"
	"crypto-dashboard/internal/config"
	"crypto-dashboard/internal/format"
	"crypto-dashboard/internal/logging"
	"crypto-dashboard/internal/market"
	"crypto-dashboard/internal/notify"
	"crypto-dashboard/internal/page"
	"crypto-dashboard/internal/prefs"
	"crypto-dashboard/internal/push/webhook"
	"crypto-dashboard/internal/refresh"
	"crypto-dashboard/internal/render"
	"crypto-dashboard/internal/store"
	"crypto-dashboard/internal/ticker"
)

const configPath = "configs/app.yaml"

func main() {
	path := configPath
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	logger := logging.New(cfg.Log.Level)

	st, err := store.Open(cfg.Store.Sqlite.Path)
	if err != nil {
		logger.Fatalf("store error: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Errorf("store close error: %v", err)
		}
	}()
	pf := prefs.New(st)

	hook := webhook.NewClient(
		cfg.Push.Webhook.URL,
		cfg.Push.Webhook.Secret,
		time.Duration(cfg.Push.Webhook.TimeoutMs)*time.Millisecond,
		webhook.NewLimiter(cfg.Push.Webhook.RateLimit.PerMinute, cfg.Push.Webhook.RateLimit.Burst),
	)
	center := notify.NewCenter(notify.Config{
		DefaultDuration: time.Duration(cfg.Notify.DefaultDurationMs) * time.Millisecond,
		PushTimeout:     time.Duration(cfg.Push.Webhook.TimeoutMs) * time.Millisecond,
	}, hook, logging.Component(logger, "notify"))

	fetcher := market.NewThrottledFetcher(
		buildFetcher(cfg.Market, logger),
		time.Duration(cfg.Market.MinRequestIntervalMs)*time.Millisecond,
	)

	reg := render.NewRegistry()
	for _, coin := range market.Dedupe(cfg.Market.Coins) {
		for _, role := range []render.Role{render.RolePrice, render.RoleChange, render.RoleMarketCap} {
			if _, err := reg.Register(coin, role); err != nil {
				logger.Fatalf("register element error: %v", err)
			}
		}
	}
	formatter := format.New(cfg.Display.Locale)
	pipeline := refresh.New(fetcher, render.NewRenderer(reg, formatter), center, logging.Component(logger, "refresh"))

	tk := ticker.New(ticker.Config{
		Period:     time.Duration(cfg.Ticker.PeriodSec) * time.Second,
		AllowPaths: cfg.Ticker.AllowPaths,
	}, pipeline.Tick, logging.Component(logger, "ticker"))
	pg := page.New(tk, center, reg, pf, logging.Component(logger, "page"))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	h.OnShutdown = append(h.OnShutdown, func(context.Context) {
		pg.Teardown()
	})

	api.RegisterRoutes(h, api.Deps{
		Fetcher:      fetcher,
		Markets:      fetcher,
		Pipeline:     pipeline,
		Registry:     reg,
		Page:         pg,
		Notifier:     center,
		Prefs:        pf,
		Formatter:    formatter,
		DefaultCoins: cfg.Market.Coins,
		Log:          logging.Component(logger, "api"),
	})

	logger.WithFields(logrus.Fields{
		"addr":    addr,
		"fetcher": cfg.Market.Fetcher,
		"webhook": hook.Enabled(),
	}).Info("server starting")
	if err := h.Run(); err != nil {
		logger.Fatalf("server run error: %v", err)
	}
}

func buildFetcher(cfg config.MarketConfig, logger *logrus.Logger) market.Fetcher {
	mock := market.NewMockFetcher(
		time.Duration(cfg.Mock.LatencyMs)*time.Millisecond,
		market.WithFailRate(cfg.Mock.FailRate),
	)
	gecko := market.NewCoinGeckoFetcher(
		cfg.CoinGecko.BaseURL,
		cfg.CoinGecko.APIKey,
		time.Duration(cfg.CoinGecko.TimeoutMs)*time.Millisecond,
		logging.Component(logger, "coingecko"),
	)
	switch strings.ToLower(cfg.Fetcher) {
	case "coingecko":
		return gecko
	case "coingecko+mock":
		return market.NewMultiFetcher(gecko, mock)
	default:
		return mock
	}
}
