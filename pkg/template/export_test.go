package template

import "time"

// SetTimeNow replaces the engine clock.
func SetTimeNow(e *Engine, fn func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeNow = fn
}
