// Package page tracks the dashboard page lifecycle reported by the browser
// and keeps the refresh ticker in step with it.
package page

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"crypto-dashboard/internal/notify"
	"crypto-dashboard/internal/render"
)

const (
	MsgOffline      = "You are offline"
	MsgOnline       = "Back online"
	MsgWelcome      = "Welcome to the crypto dashboard!"
	MsgCopied       = "Copied to clipboard!"
	MsgCopyFailed   = "Failed to copy"
	welcomeDuration = 5 * time.Second
)

var (
	ErrCopyFailed = errors.New("copy failed")
	ErrClosed     = errors.New("page torn down")
)

type Ticker interface {
	Start(route string) bool
	Stop()
	Running() bool
}

type Notifier interface {
	Notify(message string, sev notify.Severity, d time.Duration) notify.Notification
	Close()
}

type Visits interface {
	MarkVisited() (bool, error)
}

type State struct {
	Route   string `json:"route"`
	Visible bool   `json:"visible"`
	Online  bool   `json:"online"`
	Ticking bool   `json:"ticking"`
	Closed  bool   `json:"closed"`
}

type Page struct {
	ticker   Ticker
	notifier Notifier
	registry *render.Registry
	visits   Visits
	log      *logrus.Entry

	mu      sync.Mutex
	route   string
	visible bool
	online  bool
	closed  bool
}

func New(t Ticker, n Notifier, reg *render.Registry, visits Visits, log *logrus.Entry) *Page {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Page{
		ticker:   t,
		notifier: n,
		registry: reg,
		visits:   visits,
		log:      log,
		visible:  true,
		online:   true,
	}
}

func (p *Page) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Route:   p.route,
		Visible: p.visible,
		Online:  p.online,
		Ticking: p.ticker.Running(),
		Closed:  p.closed,
	}
}

// Enter is called once the page has loaded. The first visit ever gets a
// welcome toast.
func (p *Page) Enter(route string) error {
	if err := p.Navigate(route); err != nil {
		return err
	}
	if p.visits == nil {
		return nil
	}
	first, err := p.visits.MarkVisited()
	if err != nil {
		p.log.WithError(err).Warn("record first visit failed")
		return nil
	}
	if first {
		p.notifier.Notify(MsgWelcome, notify.SeverityInfo, welcomeDuration)
	}
	return nil
}

func (p *Page) Navigate(route string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.route == route {
		return nil
	}
	p.route = route
	p.syncLocked()
	return nil
}

func (p *Page) SetVisible(visible bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.visible == visible {
		return nil
	}
	p.visible = visible
	p.syncLocked()
	return nil
}

func (p *Page) SetOnline(online bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.online == online {
		p.mu.Unlock()
		return nil
	}
	p.online = online
	p.syncLocked()
	p.mu.Unlock()

	if online {
		p.notifier.Notify(MsgOnline, notify.SeveritySuccess, 0)
	} else {
		p.notifier.Notify(MsgOffline, notify.SeverityWarning, 0)
	}
	return nil
}

// Teardown stops the ticker for good and drops pending toasts.
func (p *Page) Teardown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.ticker.Stop()
	p.mu.Unlock()

	p.notifier.Close()
	p.log.Info("page torn down")
}

// Copy returns the rendered text of an element for the clipboard.
func (p *Page) Copy(elementID string) (string, error) {
	el, ok := p.registry.Get(elementID)
	if !ok {
		p.notifier.Notify(MsgCopyFailed, notify.SeverityError, 0)
		return "", fmt.Errorf("%w: unknown element %q", ErrCopyFailed, elementID)
	}
	text := el.Text()
	if text == "" {
		p.notifier.Notify(MsgCopyFailed, notify.SeverityError, 0)
		return "", fmt.Errorf("%w: element %q has no text yet", ErrCopyFailed, elementID)
	}
	p.notifier.Notify(MsgCopied, notify.SeveritySuccess, 0)
	return text, nil
}

// syncLocked runs the ticker only while the page is visible, online and
// on an allow-listed route. Callers invoke it only on a state change so a
// running loop keeps its period.
func (p *Page) syncLocked() {
	if p.visible && p.online && p.route != "" {
		if p.ticker.Start(p.route) {
			return
		}
		p.log.WithField("route", p.route).Debug("route not refreshed")
		return
	}
	p.ticker.Stop()
}
