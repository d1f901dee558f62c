// Package memhost is an in-memory template host. It delivers pushes
// synchronously when told to and lets callers inject open and close
// failures. It backs engine tests and the livecard console's offline mode.
package memhost

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/livecard/livecard-go/pkg/template"
)

// ErrClosed is returned when closing a channel twice.
var ErrClosed = errors.New("memhost: channel already closed")

// Host is an in-memory template.Host. The zero value is not usable; call New.
type Host struct {
	mu sync.Mutex

	channels map[string][]*Channel
	requests []template.RenderRequest
	opens    map[string]int

	openErr    map[string]error
	closeErr   map[string]error
	closePanic map[string]any

	state map[string]any
}

// New returns an empty host.
func New() *Host {
	return &Host{
		channels:   make(map[string][]*Channel),
		opens:      make(map[string]int),
		openErr:    make(map[string]error),
		closeErr:   make(map[string]error),
		closePanic: make(map[string]any),
		state:      make(map[string]any),
	}
}

// Channel is one open subscription on the host.
type Channel struct {
	host      *Host
	req       template.RenderRequest
	onMessage func(template.Message)
	closed    bool
}

// Request returns the request the channel was opened with.
func (c *Channel) Request() template.RenderRequest {
	return c.req
}

// Close implements template.Handle.
func (c *Channel) Close(context.Context) error {
	h := c.host
	h.mu.Lock()
	if v, ok := h.closePanic[c.req.Key]; ok {
		h.mu.Unlock()
		panic(v)
	}
	if err := h.closeErr[c.req.Key]; err != nil {
		h.mu.Unlock()
		return err
	}
	if c.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	h.mu.Unlock()
	return nil
}

// Open implements template.Host.
func (h *Host) Open(ctx context.Context, req template.RenderRequest, onMessage func(template.Message)) (template.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.opens[req.Key]++
	h.requests = append(h.requests, req)
	if err := h.openErr[req.Key]; err != nil {
		return nil, err
	}

	ch := &Channel{host: h, req: req, onMessage: onMessage}
	h.channels[req.Key] = append(h.channels[req.Key], ch)
	return ch, nil
}

// HostState implements template.StateSource.
func (h *Host) HostState() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.state)
}

// SetState replaces the host entity state.
func (h *Host) SetState(state map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = maps.Clone(state)
}

// Push delivers result to every open channel for key and returns how many
// channels received it.
func (h *Host) Push(key string, result any) int {
	h.mu.Lock()
	var targets []*Channel
	for _, ch := range h.channels[key] {
		if !ch.closed {
			targets = append(targets, ch)
		}
	}
	h.mu.Unlock()

	for _, ch := range targets {
		ch.onMessage(template.Message{Result: result})
	}
	return len(targets)
}

// Opens returns how many times Open was called for key.
func (h *Host) Opens(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens[key]
}

// OpenChannels returns the number of channels not yet closed.
func (h *Host) OpenChannels() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, chs := range h.channels {
		for _, ch := range chs {
			if !ch.closed {
				n++
			}
		}
	}
	return n
}

// Requests returns every request received, in order.
func (h *Host) Requests() []template.RenderRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]template.RenderRequest(nil), h.requests...)
}

// FailOpen makes future opens for key fail with err. A nil err clears it.
func (h *Host) FailOpen(key string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.openErr, key)
		return
	}
	h.openErr[key] = err
}

// FailClose makes closes for key return err. A nil err clears it.
func (h *Host) FailClose(key string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.closeErr, key)
		return
	}
	h.closeErr[key] = err
}

// PanicOnClose makes closes for key panic with v.
func (h *Host) PanicOnClose(key string, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closePanic[key] = v
}

var (
	_ template.Host        = (*Host)(nil)
	_ template.StateSource = (*Host)(nil)
	_ template.Handle      = (*Channel)(nil)
)
