// Package timer owns the engine's long-lived asynchronous primitives:
// the per-task one-second accumulation tick and the single-shot
// approval timeout. Both are cancellable and released deterministically
// when a task leaves the state that required them.
package timer

import (
	"sync"
	"time"

	"github.com/Automobile-System/taskengine/internal/clock"
)

// Service manages at most one accumulator and one armed timeout per
// task id. Start/Stop and Arm/Disarm are idempotent.
type Service struct {
	clock clock.Clock

	mu           sync.Mutex
	accumulators map[string]*accumulator
	timeouts     map[string]*timeout
}

type accumulator struct {
	ticker clock.Ticker
	done   chan struct{}
}

type timeout struct {
	timer clock.Timer
	done  chan struct{}
}

// New creates a timer service bound to the supplied clock.
func New(clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		clock:        clk,
		accumulators: make(map[string]*accumulator),
		timeouts:     make(map[string]*timeout),
	}
}

// StartAccumulation begins invoking onTick once per wall-clock second
// for taskID. Calling it while an accumulator is already active is a
// no-op: a task never gets a duplicate ticker.
func (s *Service) StartAccumulation(taskID string, onTick func(taskID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accumulators[taskID]; ok {
		return
	}
	a := &accumulator{
		ticker: s.clock.NewTicker(time.Second),
		done:   make(chan struct{}),
	}
	s.accumulators[taskID] = a
	go func() {
		defer a.ticker.Stop()
		for {
			select {
			case <-a.done:
				return
			case <-a.ticker.C():
				onTick(taskID)
			}
		}
	}()
}

// StopAccumulation halts the per-second tick for taskID; idempotent.
// A tick already in flight may still invoke onTick once after return;
// the callback is expected to re-check task state, so a straggler is a
// no-op.
func (s *Service) StopAccumulation(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accumulators[taskID]
	if !ok {
		return
	}
	delete(s.accumulators, taskID)
	a.ticker.Stop()
	close(a.done)
}

// ArmTimeout schedules a single invocation of onExpire after d. Only
// one armed timeout per task is permitted; arming while one is already
// armed replaces it.
func (s *Service) ArmTimeout(taskID string, d time.Duration, onExpire func(taskID string)) {
	s.mu.Lock()
	if prev, ok := s.timeouts[taskID]; ok {
		delete(s.timeouts, taskID)
		prev.timer.Stop()
		close(prev.done)
	}
	t := &timeout{
		timer: s.clock.NewTimer(d),
		done:  make(chan struct{}),
	}
	s.timeouts[taskID] = t
	s.mu.Unlock()

	go func() {
		select {
		case <-t.done:
			return
		case <-t.timer.C():
		}
		// A concurrent disarm wins: once DisarmTimeout has removed the
		// entry, the callback must not fire.
		s.mu.Lock()
		if s.timeouts[taskID] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timeouts, taskID)
		s.mu.Unlock()
		onExpire(taskID)
	}()
}

// DisarmTimeout cancels a pending timeout for taskID; idempotent. After
// it returns the expiry callback will not fire unless it had already
// begun executing, in which case the callback's own state re-check
// applies.
func (s *Service) DisarmTimeout(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timeouts[taskID]
	if !ok {
		return
	}
	delete(s.timeouts, taskID)
	t.timer.Stop()
	close(t.done)
}

// ActiveAccumulators returns the number of tasks currently accumulating.
func (s *Service) ActiveAccumulators() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accumulators)
}

// ArmedTimeouts returns the number of tasks with a pending timeout.
func (s *Service) ArmedTimeouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timeouts)
}

// Shutdown releases every accumulator and timeout, e.g. on process
// teardown.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.accumulators {
		delete(s.accumulators, id)
		a.ticker.Stop()
		close(a.done)
	}
	for id, t := range s.timeouts {
		delete(s.timeouts, id)
		t.timer.Stop()
		close(t.done)
	}
}
