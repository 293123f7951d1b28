// Package notify keeps the transient toast notifications shown on the
// dashboard. Each toast expires on its own timer and can be dismissed
// early. Error toasts are optionally forwarded to a webhook.
package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crypto-dashboard/internal/push/webhook"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const DefaultDuration = 3000 * time.Millisecond

func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeveritySuccess:
		return SeveritySuccess
	case SeverityWarning:
		return SeverityWarning
	case SeverityError:
		return SeverityError
	default:
		return SeverityInfo
	}
}

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Pusher forwards error notifications off-page.
type Pusher interface {
	Enabled() bool
	Send(ctx context.Context, msg webhook.Message) error
}

type Config struct {
	DefaultDuration time.Duration
	PushTimeout     time.Duration
}

type entry struct {
	n     Notification
	timer *time.Timer
}

type Center struct {
	cfg    Config
	pusher Pusher
	log    *logrus.Entry

	mu     sync.Mutex
	order  []string
	items  map[string]*entry
	closed bool
}

func NewCenter(cfg Config, pusher Pusher, log *logrus.Entry) *Center {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Center{
		cfg:    cfg,
		pusher: pusher,
		log:    log,
		items:  make(map[string]*entry),
	}
}

// Notify shows a toast for d (the default duration when d <= 0). After
// Close it returns the notification without showing it.
func (c *Center) Notify(message string, sev Severity, d time.Duration) Notification {
	if d <= 0 {
		d = c.cfg.DefaultDuration
	}
	sev = ParseSeverity(string(sev))
	now := time.Now()
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  sev,
		CreatedAt: now,
		ExpiresAt: now.Add(d),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return n
	}
	id := n.ID
	c.items[id] = &entry{
		n:     n,
		timer: time.AfterFunc(d, func() { c.expire(id) }),
	}
	c.order = append(c.order, id)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"severity": sev, "id": id}).Debug(message)
	if sev == SeverityError {
		c.forward(n)
	}
	return n
}

func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	c.removeLocked(id)
	return true
}

// Active returns the visible notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].n)
	}
	return out
}

// Close drops every toast and stops their timers. Timers that already fired
// find nothing to remove.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, e := range c.items {
		e.timer.Stop()
	}
	c.items = make(map[string]*entry)
	c.order = nil
}

func (c *Center) expire(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.removeLocked(id)
}

func (c *Center) removeLocked(id string) {
	if _, ok := c.items[id]; !ok {
		return
	}
	delete(c.items, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Center) forward(n Notification) {
	if c.pusher == nil || !c.pusher.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PushTimeout)
		defer cancel()
		err := c.pusher.Send(ctx, webhook.Message{
			Title:    "crypto dashboard",
			Text:     n.Message,
			Severity: string(n.Severity),
			TS:       n.CreatedAt.Unix(),
		})
		if err != nil {
			c.log.WithError(err).Warn("webhook push failed")
		}
	}()
}
