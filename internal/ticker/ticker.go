// Package ticker runs the periodic refresh loop for allow-listed routes.
package ticker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultPeriod = 30 * time.Second

// TickFunc runs one cycle. ctx is cancelled when the ticker stops or is
// restarted.
type TickFunc func(ctx context.Context)

type Config struct {
	Period     time.Duration
	AllowPaths []string
}

// Ticker owns at most one running loop. Start while running replaces the
// loop; ticks of one loop never overlap.
type Ticker struct {
	period time.Duration
	allow  []string
	tick   TickFunc
	log    *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	runID  string
}

func New(cfg Config, tick TickFunc, log *logrus.Entry) *Ticker {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ticker{
		period: cfg.Period,
		allow:  append([]string(nil), cfg.AllowPaths...),
		tick:   tick,
		log:    log,
	}
}

// Allowed reports whether route contains one of the allow-listed paths.
func (t *Ticker) Allowed(route string) bool {
	for _, p := range t.allow {
		if p != "" && strings.Contains(route, p) {
			return true
		}
	}
	return false
}

// Start begins ticking for route. Routes outside the allow-list stop any
// running loop and return false.
func (t *Ticker) Start(route string) bool {
	if !t.Allowed(route) {
		t.Stop()
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.runID = uuid.NewString()

	log := t.log.WithFields(logrus.Fields{"run": t.runID, "route": route})
	log.WithField("period", t.period).Debug("ticker started")
	go t.loop(ctx, log)
	return true
}

func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// stopLocked cancels the current loop without waiting for an in-flight
// tick to return.
func (t *Ticker) stopLocked() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.log.WithField("run", t.runID).Debug("ticker stopped")
	t.cancel = nil
	t.runID = ""
}

func (t *Ticker) loop(ctx context.Context, log *logrus.Entry) {
	tk := time.NewTicker(t.period)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if ctx.Err() != nil {
				return
			}
			log.Debug("tick")
			t.tick(ctx)
		}
	}
}
