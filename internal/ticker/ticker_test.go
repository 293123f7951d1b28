package ticker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"crypto-dashboard/internal/logging"
)

const testPeriod = 10 * time.Millisecond

type counter struct {
	n atomic.Int32
}

func (c *counter) tick(context.Context) {
	c.n.Add(1)
}

func newTicker(c *counter) *Ticker {
	return New(Config{
		Period:     testPeriod,
		AllowPaths: []string{"/dashboard", "/portfolio"},
	}, c.tick, logging.Component(logging.Discard(), "ticker"))
}

func TestAllowed(t *testing.T) {
	tk := newTicker(&counter{})
	assert.True(t, tk.Allowed("/dashboard"))
	assert.True(t, tk.Allowed("/app/portfolio/42"))
	assert.False(t, tk.Allowed("/news"))
	assert.False(t, tk.Allowed(""))
}

func TestStartOutsideAllowList(t *testing.T) {
	c := &counter{}
	tk := newTicker(c)

	assert.False(t, tk.Start("/news"))
	assert.False(t, tk.Running())

	time.Sleep(5 * testPeriod)
	assert.Equal(t, int32(0), c.n.Load())
}

func TestStartTicksUntilStopped(t *testing.T) {
	c := &counter{}
	tk := newTicker(c)

	assert.True(t, tk.Start("/dashboard"))
	assert.True(t, tk.Running())
	assert.Eventually(t, func() bool { return c.n.Load() >= 3 }, time.Second, time.Millisecond)

	tk.Stop()
	assert.False(t, tk.Running())
	time.Sleep(2 * testPeriod)
	stopped := c.n.Load()
	time.Sleep(5 * testPeriod)
	assert.Equal(t, stopped, c.n.Load(), "no ticks after stop")
}

func TestNavigatingAwayStops(t *testing.T) {
	c := &counter{}
	tk := newTicker(c)

	tk.Start("/dashboard")
	assert.False(t, tk.Start("/settings"))
	assert.False(t, tk.Running())
}

func TestRestartKeepsSingleLoop(t *testing.T) {
	c := &counter{}
	tk := newTicker(c)

	for i := 0; i < 5; i++ {
		tk.Start("/dashboard")
	}
	time.Sleep(20 * testPeriod)
	tk.Stop()

	// one loop at 10ms over ~200ms gives about 20 ticks; five loops would
	// give about 100.
	assert.Less(t, c.n.Load(), int32(40))
}

func TestStopCancelsInFlightTick(t *testing.T) {
	var (
		once     sync.Once
		started  = make(chan struct{})
		canceled = make(chan struct{})
	)
	tk := New(Config{Period: testPeriod, AllowPaths: []string{"/dashboard"}}, func(ctx context.Context) {
		once.Do(func() {
			close(started)
			<-ctx.Done()
			close(canceled)
		})
	}, nil)

	tk.Start("/dashboard")
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("tick never started")
	}
	tk.Stop()
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("in-flight tick was not cancelled")
	}
}
