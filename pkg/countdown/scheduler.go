package countdown

import (
	"slices"
	"sync"
	"time"
)

// Scheduler runs fn periodically until the returned cancel function is
// called. cancel must be safe to call more than once.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler runs each periodic function on its own goroutine driven
// by a time.Ticker.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
	}
}

// ManualScheduler fires registered functions only when Advance is called.
// It lets tests and single-threaded hosts drive ticks deterministically.
type ManualScheduler struct {
	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]func()
}

// NewManualScheduler returns an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{tasks: make(map[uint64]func())}
}

// Every implements Scheduler. The interval is ignored.
func (s *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.tasks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.tasks, id)
	}
}

// Advance fires every active task once, in registration order. A task
// cancelled by an earlier task during the same Advance does not fire.
func (s *ManualScheduler) Advance() {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		s.mu.Lock()
		fn, ok := s.tasks[id]
		s.mu.Unlock()
		if ok {
			fn()
		}
	}
}

// AdvanceN calls Advance n times.
func (s *ManualScheduler) AdvanceN(n int) {
	for range n {
		s.Advance()
	}
}

// Active returns the number of registered tasks.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
