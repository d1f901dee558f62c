// Package runtime wires one engine, one countdown manager and one change
// broadcaster into an application context.
//
// Collaborators that need template results or timers are handed the Runtime
// or one of its parts. There is no package-level state.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/livecard/livecard-go/pkg/config"
	"github.com/livecard/livecard-go/pkg/countdown"
	"github.com/livecard/livecard-go/pkg/log"
	"github.com/livecard/livecard-go/pkg/notify"
	"github.com/livecard/livecard-go/pkg/template"
)

// Runtime errors.
var (
	ErrAlreadyStarted = errors.New("runtime already started")
	ErrClosed         = errors.New("runtime closed")
	ErrUnknownPreset  = errors.New("unknown timer preset")
)

// Options configures a Runtime.
type Options struct {
	Config config.Config

	// Host serves template subscriptions. It may be nil and bound later
	// with Rebind.
	Host template.Host

	// Scheduler drives countdown ticks. Defaults to countdown.TickerScheduler.
	Scheduler countdown.Scheduler

	// Logger is the optional operational logger. Nil disables logging.
	Logger *slog.Logger

	// TraceLogger receives trace events in addition to the trace file
	// named by Config.Log.Trace. Optional.
	TraceLogger log.Logger
}

// Runtime owns the reactive data layer of one application context.
type Runtime struct {
	mu sync.Mutex

	config  config.Config
	logger  *slog.Logger
	changes *notify.Broadcaster
	engine  *template.Engine
	timers  *countdown.Manager
	tracer  *log.Tracer

	traceFile *log.FileLogger
	presets   map[string]config.TimerPreset

	started bool
	closed  bool
}

// New builds a runtime. It opens the trace file when one is configured but
// does not contact the host; call Start for that.
func New(opts Options) (*Runtime, error) {
	cfg := opts.Config

	var traceFile *log.FileLogger
	if cfg.Log.Trace != "" {
		f, err := log.NewFileLogger(cfg.Log.Trace)
		if err != nil {
			return nil, fmt.Errorf("runtime: open trace: %w", err)
		}
		traceFile = f
	}

	var tracer *log.Tracer
	if traceFile != nil || opts.TraceLogger != nil {
		var sinks []log.Logger
		if traceFile != nil {
			sinks = append(sinks, traceFile)
		}
		if opts.TraceLogger != nil {
			sinks = append(sinks, opts.TraceLogger)
		}
		tracer = log.NewTracer(log.NewMultiLogger(sinks...))
	}

	changes := &notify.Broadcaster{}

	engineConfig := template.DefaultConfig()
	if cfg.Engine.CacheTTL > 0 {
		engineConfig.CacheTTL = cfg.Engine.CacheTTL
	}
	engineConfig.Changes = changes
	engineConfig.Logger = opts.Logger
	engineConfig.Trace = tracer

	presets := make(map[string]config.TimerPreset, len(cfg.Timers.Presets))
	for _, p := range cfg.Timers.Presets {
		presets[p.ID] = p
	}

	return &Runtime{
		config:  cfg,
		logger:  opts.Logger,
		changes: changes,
		engine:  template.NewEngine(opts.Host, engineConfig),
		timers: countdown.NewManager(countdown.Config{
			TickInterval: cfg.Timers.TickInterval,
			Scheduler:    opts.Scheduler,
			Changes:      changes,
			Logger:       opts.Logger,
			Trace:        tracer,
		}),
		tracer:    tracer,
		traceFile: traceFile,
		presets:   presets,
	}, nil
}

// Templates returns the template engine.
func (r *Runtime) Templates() *template.Engine {
	return r.engine
}

// Timers returns the countdown manager.
func (r *Runtime) Timers() *countdown.Manager {
	return r.timers
}

// Changes returns the broadcaster signalled by both the engine and the
// countdown manager.
func (r *Runtime) Changes() *notify.Broadcaster {
	return r.changes
}

// Tracer returns the runtime's event tracer, nil when tracing is off.
// Transports share it so their events carry the same session id.
func (r *Runtime) Tracer() *log.Tracer {
	return r.tracer
}

// SessionID returns the trace session id, or "" when tracing is off.
func (r *Runtime) SessionID() string {
	return r.tracer.SessionID()
}

// Start subscribes every configured template and starts autostart presets.
// Subscribe failures are collected; the remaining templates are still
// subscribed.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	var errs []error
	for _, spec := range r.config.Templates {
		err := r.engine.Subscribe(ctx, spec.Key, spec.Template, r.onTemplateChange, spec.Variables, spec.Scope)
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range r.config.Timers.Presets {
		if p.Autostart {
			r.timers.Start(p.ID, p.Seconds, r.onTimerExpire)
		}
	}

	return errors.Join(errs...)
}

// Preset returns the configured preset for id.
func (r *Runtime) Preset(id string) (config.TimerPreset, bool) {
	p, ok := r.presets[id]
	return p, ok
}

// StartPreset starts the countdown for a configured preset.
func (r *Runtime) StartPreset(id string) error {
	p, ok := r.presets[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, id)
	}
	r.timers.Start(p.ID, p.Seconds, r.onTimerExpire)
	return nil
}

// Rebind points the engine at a new host, for example after reconnecting.
func (r *Runtime) Rebind(host template.Host) {
	r.engine.Rebind(host)
}

// Close stops every countdown, tears down every subscription and closes the
// trace file. It returns the teardown outcomes; a second Close returns nil.
func (r *Runtime) Close(ctx context.Context) []template.CloseOutcome {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.timers.Close()
	outcomes := r.engine.TeardownAll(ctx)

	if r.traceFile != nil {
		if err := r.traceFile.Close(); err != nil {
			r.logWarn("closing trace file failed", "error", err)
		}
	}
	return outcomes
}

func (r *Runtime) onTemplateChange(key string, value bool, raw string) {
	r.logDebug("template changed", "key", key, "value", value, "raw", raw)
}

func (r *Runtime) onTimerExpire(id string) {
	if r.logger != nil {
		r.logger.Info("timer expired", "id", id)
	}
}

func (r *Runtime) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Runtime) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
