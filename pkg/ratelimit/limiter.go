package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
)

type window struct {
	length time.Duration
	start  time.Time
	count  int
}

// roll resets the window once its length has fully elapsed.
func (w *window) roll(now time.Time) {
	if now.Sub(w.start) >= w.length {
		w.count = 0
		w.start = now
	}
}

func (w *window) current(now time.Time) int {
	if now.Sub(w.start) >= w.length {
		return 0
	}
	return w.count
}

// usage is the per-endpoint state. One lock covers check, reset and increment.
type usage struct {
	mu     sync.Mutex
	minute window
	hour   window
}

// Limiter gates endpoints on fixed minute and hour windows with lazy resets.
type Limiter struct {
	clock  clock.Clock
	states *xsync.Map[string, *usage]
}

// New returns a limiter reading time from clk (clock.New() when nil).
func New(clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		clock:  clk,
		states: xsync.NewMap[string, *usage](),
	}
}

func (l *Limiter) state(name string) *usage {
	if st, ok := l.states.Load(name); ok {
		return st
	}
	now := l.clock.Now()
	st, _ := l.states.LoadOrStore(name, &usage{
		minute: window{length: MinuteWindow, start: now},
		hour:   window{length: HourWindow, start: now},
	})
	return st
}

// Check reports whether the endpoint may take another request. A limit of 0 is unlimited.
func (l *Limiter) Check(name string, perMinute, perHour int) bool {
	st := l.state(name)
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.minute.roll(now)
	st.hour.roll(now)

	if perMinute > 0 && st.minute.count >= perMinute {
		return false
	}
	if perHour > 0 && st.hour.count >= perHour {
		return false
	}
	return true
}

// Acquire checks the limits and reserves one slot under the same lock.
// It returns false, reserving nothing, when either window is full.
func (l *Limiter) Acquire(name string, perMinute, perHour int) bool {
	st := l.state(name)
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.minute.roll(now)
	st.hour.roll(now)

	if perMinute > 0 && st.minute.count >= perMinute {
		return false
	}
	if perHour > 0 && st.hour.count >= perHour {
		return false
	}
	st.minute.count++
	st.hour.count++
	return true
}

// Release returns a slot taken by Acquire or Increment for a request that was never sent.
// Counters never drop below zero, so a release after a window reset is a no-op.
func (l *Limiter) Release(name string) {
	st, ok := l.states.Load(name)
	if !ok {
		return
	}
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.minute.roll(now)
	st.hour.roll(now)
	if st.minute.count > 0 {
		st.minute.count--
	}
	if st.hour.count > 0 {
		st.hour.count--
	}
}

// Increment counts one dispatched request against both windows without checking the limits.
func (l *Limiter) Increment(name string) {
	st := l.state(name)
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.minute.roll(now)
	st.hour.roll(now)
	st.minute.count++
	st.hour.count++
}

// Usage returns the counters as they would read after a lazy reset, without mutating them.
func (l *Limiter) Usage(name string) (minute, hour int) {
	st, ok := l.states.Load(name)
	if !ok {
		return 0, 0
	}
	now := l.clock.Now()

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.minute.current(now), st.hour.current(now)
}

// WindowStart exposes when the named window last started; zero when the endpoint is unseen.
func (l *Limiter) WindowStart(name string, length time.Duration) time.Time {
	st, ok := l.states.Load(name)
	if !ok {
		return time.Time{}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if length == HourWindow {
		return st.hour.start
	}
	return st.minute.start
}

// Forget drops the state of an endpoint that left the registry.
func (l *Limiter) Forget(name string) {
	l.states.Delete(name)
}
