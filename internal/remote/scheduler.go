package remote

import (
	"sync"
	"time"
)

// Scheduler runs a flush callback once at the end of the current unit of
// work. Schedule is called without the window lock held, so an
// implementation that runs fn before returning delays only the submitter.
type Scheduler interface {
	Schedule(fn func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func())

func (f SchedulerFunc) Schedule(fn func()) { f(fn) }

// DelayScheduler runs each callback on its own goroutine Delay after it was
// scheduled. Because only a window's first submission schedules, Delay bounds
// how long any request waits in a window.
type DelayScheduler struct {
	Delay time.Duration
}

func NewDelayScheduler(d time.Duration) *DelayScheduler {
	return &DelayScheduler{Delay: d}
}

func (s *DelayScheduler) Schedule(fn func()) {
	time.AfterFunc(s.Delay, fn)
}

// ManualScheduler holds callbacks until Dispatch is called. Use it when the
// unit of work has an explicit end.
type ManualScheduler struct {
	mu        sync.Mutex
	pending   []func()
	scheduled int
}

func NewManualScheduler() *ManualScheduler { return &ManualScheduler{} }

func (s *ManualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.scheduled++
	s.mu.Unlock()
}

// Dispatch runs every pending callback on the calling goroutine and returns
// how many ran. Callbacks scheduled meanwhile wait for the next Dispatch.
func (s *ManualScheduler) Dispatch() int {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Pending reports callbacks waiting for Dispatch.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Scheduled reports how many callbacks were ever scheduled.
func (s *ManualScheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled
}
