package notify

import (
	"sync"
	"testing"
	"time"
)

func TestBroadcasterZeroValue(t *testing.T) {
	var b Broadcaster

	ch := b.Changed()
	select {
	case <-ch:
		t.Fatal("Changed() closed before Notify")
	default:
	}

	b.Notify()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("Changed() not closed after Notify")
	}

	if b.Count() != 1 {
		t.Errorf("Count() = %d, want 1", b.Count())
	}
}

func TestBroadcasterChangedReplacedAfterNotify(t *testing.T) {
	var b Broadcaster

	first := b.Changed()
	b.Notify()
	second := b.Changed()

	if first == second {
		t.Fatal("Changed() returned the same channel after Notify")
	}
	select {
	case <-second:
		t.Fatal("new Changed() channel already closed")
	default:
	}
}

func TestBroadcasterListen(t *testing.T) {
	var b Broadcaster
	var calls int

	cancel := b.Listen(func() { calls++ })
	b.Notify()
	b.Notify()
	cancel()
	b.Notify()
	cancel()

	if calls != 2 {
		t.Errorf("listener calls = %d, want 2", calls)
	}
	if b.Count() != 3 {
		t.Errorf("Count() = %d, want 3", b.Count())
	}
}

func TestBroadcasterListenerMayNotify(t *testing.T) {
	var b Broadcaster
	var depth int

	b.Listen(func() {
		depth++
		if depth == 1 {
			b.Notify()
		}
	})
	b.Notify()

	if depth != 2 {
		t.Errorf("depth = %d, want 2", depth)
	}
}

func TestBroadcasterConcurrentNotify(t *testing.T) {
	var b Broadcaster
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Notify()
			_ = b.Changed()
		}()
	}
	wg.Wait()

	if b.Count() != 50 {
		t.Errorf("Count() = %d, want 50", b.Count())
	}
}
