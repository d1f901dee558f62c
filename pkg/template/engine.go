package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/livecard/livecard-go/pkg/log"
	"github.com/livecard/livecard-go/pkg/notify"
	"github.com/livecard/livecard-go/pkg/result"
)

// Engine errors.
var (
	ErrEmptyKey   = errors.New("empty subscription key")
	ErrNoHost     = errors.New("no template host bound")
	ErrOpenPanic  = errors.New("channel open panicked")
	ErrClosePanic = errors.New("channel close panicked")
)

// DefaultCacheTTL bounds how long a pushed value is reported fresh.
const DefaultCacheTTL = 2 * time.Second

// ChangeFunc is invoked when a key's interpreted value changes.
// raw is the string form of the pushed value.
type ChangeFunc func(key string, value bool, raw string)

// Config configures an Engine.
type Config struct {
	// CacheTTL is the freshness window for cached results.
	CacheTTL time.Duration

	// Preprocess rewrites templates before submission. Defaults to Identity.
	Preprocess Preprocessor

	// Changes receives a broadcast whenever a change callback fires.
	// Optional.
	Changes *notify.Broadcaster

	// Logger is the optional operational logger. Nil disables logging.
	Logger *slog.Logger

	// Trace is the optional event tracer.
	Trace *log.Tracer
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CacheTTL:   DefaultCacheTTL,
		Preprocess: Identity,
	}
}

// Entry is the last interpreted result for a key.
type Entry struct {
	Key        string
	Value      bool
	Raw        string
	CapturedAt time.Time

	// Fresh reports whether CapturedAt is within the cache TTL at read time,
	// measured with the engine clock.
	Fresh bool
}

// CloseOutcome reports how one channel closed during TeardownAll.
type CloseOutcome struct {
	Key string

	// Err is nil when the channel closed cleanly.
	Err error

	// Pending is true when the channel was still opening. Its handle is
	// closed by the Subscribe call that is opening it.
	Pending bool
}

// subscription is one live binding from a key to a channel.
type subscription struct {
	key      string
	family   result.Family
	onChange ChangeFunc
	handle   Handle
}

// Engine manages template subscriptions. It is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	host   Host
	config Config

	subs map[string]*subscription

	// entries holds the last known result per key; it is also the source
	// of the previous boolean for change detection.
	entries map[string]Entry

	// history holds the previous raw string for string-semantic keys.
	history map[string]string

	// rendered is the last rendered text per key, readable by anyone.
	rendered map[string]string

	fresh *ttlcache.Cache[string, Entry]

	timeNow func() time.Time
}

// NewEngine creates an engine bound to host. host may be nil until Rebind.
func NewEngine(host Host, config Config) *Engine {
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.Preprocess == nil {
		config.Preprocess = Identity
	}

	return &Engine{
		host:     host,
		config:   config,
		subs:     make(map[string]*subscription),
		entries:  make(map[string]Entry),
		history:  make(map[string]string),
		rendered: make(map[string]string),
		fresh: ttlcache.New(
			ttlcache.WithTTL[string, Entry](config.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, Entry](),
		),
		timeNow: time.Now,
	}
}

// Subscribe opens a push channel for key unless one already exists.
//
// Calling Subscribe again for a subscribed key is a no-op returning nil,
// whatever the template or arguments. If the host fails to open the channel
// the error is logged and returned, and key stays unsubscribed.
func (e *Engine) Subscribe(
	ctx context.Context,
	key, text string,
	onChange ChangeFunc,
	variables, scope map[string]any,
) error {
	if key == "" {
		return ErrEmptyKey
	}

	e.mu.Lock()
	if _, exists := e.subs[key]; exists {
		e.mu.Unlock()
		e.trace(log.Event{
			Layer:     log.LayerEngine,
			Category:  log.CategorySubscribe,
			Key:       key,
			Subscribe: &log.SubscribeEvent{Outcome: log.SubscribeDuplicate},
		})
		return nil
	}
	host := e.host
	if host == nil {
		e.mu.Unlock()
		return ErrNoHost
	}

	// Reserve the key before contacting the host so concurrent callers
	// see it as subscribed.
	sub := &subscription{
		key:      key,
		family:   result.ClassifyFamily(key),
		onChange: onChange,
	}
	e.subs[key] = sub
	preprocess := e.config.Preprocess
	e.mu.Unlock()

	var state map[string]any
	if src, ok := host.(StateSource); ok {
		state = src.HostState()
	}
	req := RenderRequest{
		Key:       key,
		Template:  preprocess(text, state, scope),
		Variables: variables,
	}

	handle, err := openChannel(ctx, host, req, func(msg Message) {
		e.handlePush(sub, msg)
	})

	e.mu.Lock()
	if err != nil {
		if e.subs[key] == sub {
			delete(e.subs, key)
		}
		e.mu.Unlock()

		e.logError("template subscribe failed", "key", key, "error", err)
		e.trace(log.Event{
			Layer:     log.LayerChannel,
			Category:  log.CategorySubscribe,
			Key:       key,
			Subscribe: &log.SubscribeEvent{Template: req.Template, Outcome: log.SubscribeFailed},
		})
		return fmt.Errorf("subscribe %q: %w", key, err)
	}

	current := e.subs[key] == sub
	if current {
		sub.handle = handle
	}
	e.mu.Unlock()

	if !current {
		// Torn down while opening; nobody else holds this handle.
		if cerr := closeChannel(ctx, handle); cerr != nil {
			e.logWarn("closing orphaned channel failed", "key", key, "error", cerr)
		}
		return nil
	}

	e.logDebug("template subscribed", "key", key, "family", sub.family.String())
	e.trace(log.Event{
		Layer:     log.LayerChannel,
		Category:  log.CategorySubscribe,
		Key:       key,
		Subscribe: &log.SubscribeEvent{Template: req.Template, Outcome: log.SubscribeOpened},
	})
	return nil
}

// handlePush interprets one pushed value for sub.
func (e *Engine) handlePush(sub *subscription, msg Message) {
	raw := result.Stringify(msg.Result)
	value := result.ParseBoolean(msg.Result, sub.family, e.config.Logger)
	now := e.timeNow()

	e.mu.Lock()
	if e.subs[sub.key] != sub {
		e.mu.Unlock()
		return
	}

	e.rendered[sub.key] = raw

	var changed bool
	if sub.family == result.FamilyString {
		prev, seen := e.history[sub.key]
		e.history[sub.key] = raw
		changed = !seen || prev != raw
	} else {
		prev, seen := e.entries[sub.key]
		changed = !seen || prev.Value != value
	}

	entry := Entry{Key: sub.key, Value: value, Raw: raw, CapturedAt: now}
	e.entries[sub.key] = entry
	e.fresh.Set(sub.key, entry, ttlcache.DefaultTTL)

	onChange := sub.onChange
	changes := e.config.Changes
	e.mu.Unlock()

	e.trace(log.Event{
		Layer:    log.LayerEngine,
		Category: log.CategoryPush,
		Key:      sub.key,
		Push: &log.PushEvent{
			Raw:     raw,
			Family:  sub.family.String(),
			Value:   value,
			Changed: changed,
		},
	})

	if !changed {
		return
	}
	if onChange != nil {
		onChange(sub.key, value, raw)
	}
	if changes != nil {
		changes.Notify()
	}
}

// Result returns the cached boolean for key. known is false when no push
// has been received for key since the last teardown or rebind.
func (e *Engine) Result(key string) (value bool, known bool) {
	entry, ok := e.Lookup(key)
	return entry.Value, ok
}

// Lookup returns the cached entry for key. Entry.Fresh reports whether it
// is within the cache TTL; stale entries are still the last known value.
func (e *Engine) Lookup(key string) (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if item := e.fresh.Get(key); item != nil {
		entry := item.Value()
		entry.Fresh = e.timeNow().Sub(entry.CapturedAt) < e.config.CacheTTL
		return entry, true
	}
	entry, ok := e.entries[key]
	return entry, ok
}

// RenderedText returns the last rendered text pushed for key.
func (e *Engine) RenderedText(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	text, ok := e.rendered[key]
	return text, ok
}

// HasSubscription reports whether key has a subscription, including one
// whose channel is still opening.
func (e *Engine) HasSubscription(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.subs[key]
	return ok
}

// Keys returns the subscribed keys in sorted order.
func (e *Engine) Keys() []string {
	e.mu.Lock()
	keys := make([]string, 0, len(e.subs))
	for k := range e.subs {
		keys = append(keys, k)
	}
	e.mu.Unlock()

	slices.Sort(keys)
	return keys
}

// Count returns the number of subscriptions.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// CacheLen returns the number of keys with a cached result.
func (e *Engine) CacheLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// TeardownAll closes every channel and clears all engine state.
//
// Each close runs independently: an error or panic from one handle is
// recorded in its outcome and does not stop the others. Subscriptions
// committed while TeardownAll runs are closed too. TeardownAll never
// panics and always leaves the engine empty. Outcomes are sorted by key.
func (e *Engine) TeardownAll(ctx context.Context) []CloseOutcome {
	outcomes := make(map[*subscription]CloseOutcome)
	closed := make(map[*subscription]bool)

	for {
		e.mu.Lock()
		var batch []*subscription
		for _, sub := range e.subs {
			if !closed[sub] && (sub.handle != nil || !hasOutcome(outcomes, sub)) {
				batch = append(batch, sub)
			}
		}
		if len(batch) == 0 {
			// Pending subscriptions left here close their own handle once
			// Subscribe sees they are no longer current.
			e.subs = make(map[string]*subscription)
			e.clearResultsLocked()
			e.mu.Unlock()
			break
		}
		handles := make([]Handle, len(batch))
		slices.SortFunc(batch, bySubscriptionKey)
		for i, sub := range batch {
			handles[i] = sub.handle
		}
		e.mu.Unlock()

		for i, sub := range batch {
			if handles[i] == nil {
				outcomes[sub] = CloseOutcome{Key: sub.key, Pending: true}
				continue
			}
			closed[sub] = true
			outcomes[sub] = e.closeOne(ctx, sub.key, handles[i])
		}
	}

	result := make([]CloseOutcome, 0, len(outcomes))
	for _, outcome := range outcomes {
		result = append(result, outcome)
	}
	slices.SortFunc(result, func(a, b CloseOutcome) int {
		return strings.Compare(a.Key, b.Key)
	})

	e.logDebug("template engine torn down", "channels", len(result))
	return result
}

func hasOutcome(outcomes map[*subscription]CloseOutcome, sub *subscription) bool {
	_, ok := outcomes[sub]
	return ok
}

func bySubscriptionKey(a, b *subscription) int {
	return strings.Compare(a.key, b.key)
}

// closeOne closes one handle during teardown, logging and tracing the result.
func (e *Engine) closeOne(ctx context.Context, key string, handle Handle) CloseOutcome {
	err := closeChannel(ctx, handle)

	teardown := &log.TeardownEvent{Closed: err == nil}
	if err != nil {
		teardown.Reason = err.Error()
		e.logWarn("template channel close failed", "key", key, "error", err)
	}
	e.trace(log.Event{
		Layer:    log.LayerChannel,
		Category: log.CategoryTeardown,
		Key:      key,
		Teardown: teardown,
	})
	return CloseOutcome{Key: key, Err: err}
}

// Rebind swaps the host used by future Subscribe calls and clears the
// cached results and rendered text. Open channels are left running and keep
// delivering pushes.
func (e *Engine) Rebind(host Host) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.host = host
	e.clearResultsLocked()
}

// clearResultsLocked empties every result store. Caller holds e.mu.
func (e *Engine) clearResultsLocked() {
	e.entries = make(map[string]Entry)
	e.history = make(map[string]string)
	e.rendered = make(map[string]string)
	e.fresh.DeleteAll()
}

// openChannel calls host.Open, converting a panic into an error.
func openChannel(ctx context.Context, host Host, req RenderRequest, onMessage func(Message)) (handle Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			handle = nil
			err = fmt.Errorf("%w: %v", ErrOpenPanic, r)
		}
	}()

	handle, err = host.Open(ctx, req, onMessage)
	if err == nil && handle == nil {
		err = errors.New("host returned nil handle")
	}
	return handle, err
}

// closeChannel closes handle, converting a panic into an error.
func closeChannel(ctx context.Context, handle Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrClosePanic, r)
		}
	}()
	return handle.Close(ctx)
}

func (e *Engine) trace(event log.Event) {
	e.config.Trace.Emit(event)
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Debug(msg, args...)
	}
}

func (e *Engine) logWarn(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Error(msg, args...)
	}
}
