// Package notify provides the payload-less change broadcast shared by the
// template engine and the countdown manager.
//
// Consumers never receive what changed. They re-read the stores they care
// about whenever a broadcast arrives.
package notify

import (
	"sync"
	"sync/atomic"
)

// Broadcaster fans a "something changed" signal out to every listener.
// The zero value is ready to use.
type Broadcaster struct {
	mu        sync.Mutex
	once      sync.Once
	signal    chan struct{}
	listeners map[uint64]func()
	nextID    uint64
	count     atomic.Uint64
}

// init ensures internal structures are allocated.
func (b *Broadcaster) init() {
	b.once.Do(func() {
		b.signal = make(chan struct{})
		b.listeners = make(map[uint64]func())
	})
}

// Notify broadcasts a change. Listeners run synchronously on the caller's
// goroutine, outside the broadcaster lock.
func (b *Broadcaster) Notify() {
	b.init()
	b.count.Add(1)

	b.mu.Lock()
	close(b.signal)
	b.signal = make(chan struct{})
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Changed returns a channel that is closed by the next Notify.
func (b *Broadcaster) Changed() <-chan struct{} {
	b.init()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signal
}

// Listen registers fn to run on every broadcast. The returned function
// removes the listener; calling it more than once is harmless.
func (b *Broadcaster) Listen(fn func()) (cancel func()) {
	b.init()
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Count returns the number of broadcasts sent so far.
func (b *Broadcaster) Count() uint64 {
	return b.count.Load()
}
