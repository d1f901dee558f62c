package countdown

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/livecard/livecard-go/pkg/log"
	"github.com/livecard/livecard-go/pkg/notify"
)

// DefaultTickInterval is the period of the tick process.
const DefaultTickInterval = time.Second

// Status is the state of one countdown.
type Status uint8

const (
	// StatusIdle means no record exists for the id.
	StatusIdle Status = iota

	// StatusRunning means the countdown is ticking.
	StatusRunning

	// StatusPaused means the countdown is stopped with time remaining.
	StatusPaused

	// StatusExpired means the countdown reached zero.
	StatusExpired
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// ExpireFunc is invoked once when a countdown reaches zero.
type ExpireFunc func(id string)

// Record is a snapshot of one countdown.
type Record struct {
	ID        string
	Status    Status
	Remaining int

	// EndTime is the projected end while running, zero otherwise.
	EndTime time.Time

	// HasExpiry reports whether an expiry callback will fire when this
	// countdown reaches zero.
	HasExpiry bool
}

// timer is the mutable record held by the manager.
type timer struct {
	id        string
	status    Status
	remaining int
	endTime   time.Time
	onExpire  ExpireFunc

	// fired is set once the current countdown has invoked onExpire. The
	// callback itself is kept so Snooze can re-arm it.
	fired bool

	// cancel stops the tick process; set iff status is running.
	cancel func()

	// gen identifies the current tick process so a tick already in flight
	// when its process was replaced is ignored.
	gen uint64
}

func (t *timer) snapshot() Record {
	return Record{
		ID:        t.id,
		Status:    t.status,
		Remaining: t.remaining,
		EndTime:   t.endTime,
		HasExpiry: t.onExpire != nil && !t.fired,
	}
}

// stopTicking cancels the tick process if one is registered.
func (t *timer) stopTicking() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Config configures a Manager.
type Config struct {
	// TickInterval is the tick period. Defaults to DefaultTickInterval.
	TickInterval time.Duration

	// Scheduler drives tick processes. Defaults to TickerScheduler.
	Scheduler Scheduler

	// Changes receives a broadcast after every transition. Optional.
	Changes *notify.Broadcaster

	// Logger is the optional operational logger. Nil disables logging.
	Logger *slog.Logger

	// Trace is the optional event tracer.
	Trace *log.Tracer
}

// Manager holds every countdown keyed by id. It is safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	timers map[string]*timer
	gen    uint64

	interval  time.Duration
	scheduler Scheduler
	changes   *notify.Broadcaster
	logger    *slog.Logger
	tracer    *log.Tracer

	timeNow func() time.Time
}

// NewManager creates an empty countdown manager.
func NewManager(config Config) *Manager {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.Scheduler == nil {
		config.Scheduler = TickerScheduler{}
	}

	return &Manager{
		timers:    make(map[string]*timer),
		interval:  config.TickInterval,
		scheduler: config.Scheduler,
		changes:   config.Changes,
		logger:    config.Logger,
		tracer:    config.Trace,
		timeNow:   time.Now,
	}
}

// Start (re)starts the countdown for id with seconds remaining, replacing
// any existing record and its tick process. Negative durations are treated
// as zero; a zero countdown expires on its first tick.
func (m *Manager) Start(id string, seconds int, onExpire ExpireFunc) {
	m.mu.Lock()
	old := m.startLocked(id, seconds, onExpire)
	m.mu.Unlock()

	m.logDebug("countdown started", "id", id, "seconds", seconds)
	m.transition(id, old, StatusRunning, max(seconds, 0), "start")
	m.broadcast()
}

// Snooze restarts the countdown for id, keeping its pending expiry callback.
// Without a record it behaves like Start with no callback.
func (m *Manager) Snooze(id string, seconds int) {
	m.mu.Lock()
	var onExpire ExpireFunc
	if t, ok := m.timers[id]; ok {
		onExpire = t.onExpire
	}
	old := m.startLocked(id, seconds, onExpire)
	m.mu.Unlock()

	m.logDebug("countdown snoozed", "id", id, "seconds", seconds)
	m.transition(id, old, StatusRunning, max(seconds, 0), "snooze")
	m.broadcast()
}

// startLocked installs a running record and returns the previous status.
// Caller holds m.mu.
func (m *Manager) startLocked(id string, seconds int, onExpire ExpireFunc) Status {
	old := StatusIdle
	if existing, ok := m.timers[id]; ok {
		old = existing.status
		existing.stopTicking()
	}

	t := &timer{
		id:        id,
		status:    StatusRunning,
		remaining: max(seconds, 0),
		onExpire:  onExpire,
	}
	m.timers[id] = t
	m.scheduleLocked(t)
	return old
}

// scheduleLocked registers a fresh tick process for t. Caller holds m.mu.
func (m *Manager) scheduleLocked(t *timer) {
	m.gen++
	gen := m.gen
	t.gen = gen
	t.endTime = m.timeNow().Add(time.Duration(t.remaining) * time.Second)

	id := t.id
	t.cancel = m.scheduler.Every(m.interval, func() {
		m.tick(id, gen)
	})
}

// Pause stops a running countdown, keeping its remaining seconds.
// It is a no-op unless id is running.
func (m *Manager) Pause(id string) {
	m.mu.Lock()
	t, ok := m.timers[id]
	if !ok || t.status != StatusRunning {
		m.mu.Unlock()
		return
	}
	t.stopTicking()
	t.status = StatusPaused
	t.endTime = time.Time{}
	remaining := t.remaining
	m.mu.Unlock()

	m.transition(id, StatusRunning, StatusPaused, remaining, "pause")
	m.broadcast()
}

// Resume restarts a paused countdown from its remaining seconds.
// It is a no-op unless id is paused.
func (m *Manager) Resume(id string) {
	m.mu.Lock()
	t, ok := m.timers[id]
	if !ok || t.status != StatusPaused {
		m.mu.Unlock()
		return
	}
	t.status = StatusRunning
	m.scheduleLocked(t)
	remaining := t.remaining
	m.mu.Unlock()

	m.transition(id, StatusPaused, StatusRunning, remaining, "resume")
	m.broadcast()
}

// Reset removes the countdown for id from any state.
func (m *Manager) Reset(id string) {
	m.remove(id, "reset")
}

// Dismiss removes the countdown for id from any state. It is Reset under
// the name used for acknowledging an expired countdown.
func (m *Manager) Dismiss(id string) {
	m.remove(id, "dismiss")
}

func (m *Manager) remove(id, operation string) {
	m.mu.Lock()
	t, ok := m.timers[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	t.stopTicking()
	delete(m.timers, id)
	m.mu.Unlock()

	m.transition(id, t.status, StatusIdle, 0, operation)
	m.broadcast()
}

// Tick advances a running countdown by one step. The scheduler calls it
// once per interval; calling it for an id that is not running is a no-op.
func (m *Manager) Tick(id string) {
	m.tick(id, 0)
}

// tick decrements id. A non-zero gen must match the record's current tick
// process.
func (m *Manager) tick(id string, gen uint64) {
	m.mu.Lock()
	t, ok := m.timers[id]
	if !ok || t.status != StatusRunning || (gen != 0 && gen != t.gen) {
		m.mu.Unlock()
		return
	}

	t.remaining = max(t.remaining-1, 0)
	remaining := t.remaining

	if remaining > 0 {
		m.mu.Unlock()
		m.transition(id, StatusRunning, StatusRunning, remaining, "tick")
		m.broadcast()
		return
	}

	t.stopTicking()
	t.status = StatusExpired
	t.endTime = time.Time{}
	var onExpire ExpireFunc
	if !t.fired {
		onExpire = t.onExpire
		t.fired = true
	}
	m.mu.Unlock()

	m.broadcast()
	m.logDebug("countdown expired", "id", id)
	m.transition(id, StatusRunning, StatusExpired, 0, "tick")
	if onExpire != nil {
		onExpire(id)
	}
	m.broadcast()
}

// State returns a snapshot of the countdown for id. ok is false when id is
// idle.
func (m *Manager) State(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[id]
	if !ok {
		return Record{ID: id, Status: StatusIdle}, false
	}
	return t.snapshot(), true
}

// Status returns the status of id, StatusIdle when absent.
func (m *Manager) Status(id string) Status {
	rec, _ := m.State(id)
	return rec.Status
}

// Records returns snapshots of every countdown sorted by id.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	records := make([]Record, 0, len(m.timers))
	for _, t := range m.timers {
		records = append(records, t.snapshot())
	}
	m.mu.Unlock()

	slices.SortFunc(records, func(a, b Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return records
}

// IDs returns the ids of every countdown in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.timers))
	for id := range m.timers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// Count returns the number of countdowns in any non-idle state.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Close cancels every tick process and drops every record without
// invoking expiry callbacks or broadcasting.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.timers {
		t.stopTicking()
	}
	m.timers = make(map[string]*timer)
}

func (m *Manager) broadcast() {
	if m.changes != nil {
		m.changes.Notify()
	}
}

func (m *Manager) transition(id string, from, to Status, remaining int, operation string) {
	m.tracer.Emit(log.Event{
		Layer:    log.LayerTimer,
		Category: log.CategoryTransition,
		Key:      id,
		Transition: &log.TransitionEvent{
			OldStatus: from.String(),
			NewStatus: to.String(),
			Remaining: remaining,
			Operation: operation,
		},
	})
}

func (m *Manager) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
