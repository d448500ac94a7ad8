package clock

import (
	"sync"
	"time"
)

// Mock is a manually advanced Clock for tests. Advance moves simulated
// time forward and delivers due ticks/timers in chronological order.
// Delivery is a blocking hand-off, so a tick is only considered
// delivered once the consuming goroutine has received it.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// NewMock returns a Mock positioned at an arbitrary fixed instant.
func NewMock() *Mock {
	return &Mock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) NewTicker(interval time.Duration) Ticker {
	return m.schedule(interval, interval)
}

func (m *Mock) NewTimer(d time.Duration) Timer {
	return m.schedule(d, 0)
}

func (m *Mock) schedule(d, interval time.Duration) *mockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{
		mock:     m,
		when:     m.now.Add(d),
		interval: interval,
		c:        make(chan time.Time),
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves simulated time forward by d, firing every timer and
// ticker due within the window, in order.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		t := m.next(target)
		if t == nil {
			break
		}
		m.now = t.when
		fireAt := t.when
		if t.interval > 0 {
			t.when = t.when.Add(t.interval)
		} else {
			t.stopped = true
		}
		// Hand off outside the lock so the receiver can call back into
		// the mock (e.g. Now) without deadlocking.
		m.mu.Unlock()
		t.c <- fireAt
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// next returns the earliest live timer due at or before target.
func (m *Mock) next(target time.Time) *mockTimer {
	var due *mockTimer
	for _, t := range m.timers {
		if t.stopped || t.when.After(target) {
			continue
		}
		if due == nil || t.when.Before(due.when) {
			due = t
		}
	}
	return due
}

type mockTimer struct {
	mock     *Mock
	when     time.Time
	interval time.Duration
	c        chan time.Time
	stopped  bool
}

func (t *mockTimer) C() <-chan time.Time { return t.c }

func (t *mockTimer) Stop() {
	t.mock.mu.Lock()
	t.stopped = true
	t.mock.mu.Unlock()
}
