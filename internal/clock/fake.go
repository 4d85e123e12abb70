package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time moves only when Advance is
// called.
//
// Unlike time.Ticker, a fake ticker never drops ticks: Advance blocks until
// each due tick has been accepted into the ticker's one-slot buffer. A test
// that advances past a tick nobody reads will therefore hang.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return &fakeTickerHandle{clock: c, t: t}
}

type fakeTickerHandle struct {
	clock *FakeClock
	t     *fakeTicker
}

func (h *fakeTickerHandle) Chan() <-chan time.Time { return h.t.ch }

func (h *fakeTickerHandle) Stop() {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	h.t.stopped = true
}

// Tickers returns the number of live tickers. Tests use it to wait until
// the code under test has created its tickers before advancing.
func (c *FakeClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every tick that falls due
// in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.nextDue(target)
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		at := due.next
		c.now = at
		due.next = at.Add(due.interval)
		c.mu.Unlock()

		// sent outside the lock so the consumer may call Now or Stop
		due.ch <- at
	}
}

func (c *FakeClock) nextDue(target time.Time) *fakeTicker {
	var pending []*fakeTicker
	for _, t := range c.tickers {
		if !t.stopped && !t.next.After(target) {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].next.Before(pending[j].next)
	})
	return pending[0]
}
