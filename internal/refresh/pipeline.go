package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crypto-dashboard/internal/market"
	"crypto-dashboard/internal/notify"
	"crypto-dashboard/internal/render"
)

const (
	MsgFetchFailed = "Failed to update prices"
	MsgUpdated     = "Prices updated"
)

type Notifier interface {
	Notify(message string, sev notify.Severity, d time.Duration) notify.Notification
}

// Pipeline runs refresh cycles: mark elements loading, fetch, render or
// report the failure, clear the loading markers.
type Pipeline struct {
	fetcher  market.Fetcher
	renderer *render.Renderer
	notifier Notifier
	log      *logrus.Entry
}

func New(fetcher market.Fetcher, renderer *render.Renderer, notifier Notifier, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		fetcher:  fetcher,
		renderer: renderer,
		notifier: notifier,
		log:      log,
	}
}

// Tick is the scheduled cycle. Failures are reported through the notifier.
func (p *Pipeline) Tick(ctx context.Context) {
	_ = p.run(ctx)
}

// RefreshNow is the manual trigger; it also confirms success with a toast.
func (p *Pipeline) RefreshNow(ctx context.Context) error {
	if err := p.run(ctx); err != nil {
		return err
	}
	p.notifier.Notify(MsgUpdated, notify.SeveritySuccess, 0)
	return nil
}

func (p *Pipeline) run(ctx context.Context) error {
	reg := p.renderer.Registry()
	ids := market.Dedupe(reg.CoinIDs())
	if len(ids) == 0 {
		return nil
	}
	log := p.log.WithFields(logrus.Fields{"cycle": uuid.NewString(), "coins": len(ids)})

	var els []*render.Element
	for _, id := range ids {
		els = append(els, reg.ElementsFor(id)...)
	}
	p.renderer.BeginLoading(els)
	defer p.renderer.EndLoading(els)

	start := time.Now()
	quotes, err := p.fetcher.FetchQuotes(ctx, ids)
	if ctx.Err() != nil {
		// stopped or superseded while fetching; the result is stale
		log.WithError(ctx.Err()).Debug("refresh cycle abandoned")
		return fmt.Errorf("refresh abandoned: %w", ctx.Err())
	}
	if err != nil {
		log.WithError(err).Warn("fetch quotes failed")
		p.notifier.Notify(MsgFetchFailed, notify.SeverityError, 0)
		if !errors.Is(err, market.ErrFetchFailed) {
			err = fmt.Errorf("%w: %w", market.ErrFetchFailed, err)
		}
		return err
	}

	p.renderer.ApplyQuotes(quotes)
	log.WithFields(logrus.Fields{
		"quotes":     len(quotes),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("prices refreshed")
	return nil
}
