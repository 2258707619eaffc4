package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so lease boundaries can be tested deterministically.
// Production code uses Real(); tests use NewFake.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) *time.Ticker
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

// Fake is a Clock whose Now only moves when Set or Advance is called.
// Tickers are real tickers; tests that need deterministic sweeps call the
// sweep function directly instead of waiting for a tick.
type Fake struct {
	mu      sync.Mutex
	current time.Time
}

// NewFake returns a Fake clock positioned at initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.mu.Unlock()
}
