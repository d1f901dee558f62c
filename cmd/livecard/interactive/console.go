// Package interactive provides the operator console for livecard.
package interactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/livecard/livecard-go/pkg/host/memhost"
	"github.com/livecard/livecard-go/pkg/runtime"
)

// Options configures a Console.
type Options struct {
	// Offline is the in-memory host backing the runtime, if any. It enables
	// the push command.
	Offline *memhost.Host

	// HostName is shown by the status command.
	HostName string
}

// Console handles the interactive command loop.
type Console struct {
	rt   *runtime.Runtime
	opts Options
	rl   *readline.Instance

	mu       sync.Mutex
	out      io.Writer
	watching bool

	stopListen func()
	closeOnce  sync.Once
}

// New creates a console reading from the terminal. Bind a runtime before
// calling Run; creating the console first lets loggers write through
// Stdout from the start.
func New(opts Options) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "livecard> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{opts: opts, rl: rl, out: rl.Stdout()}, nil
}

func newConsole(rt *runtime.Runtime, out io.Writer, opts Options) *Console {
	c := &Console{opts: opts, out: out}
	c.Bind(rt)
	return c
}

// Bind attaches the runtime the console operates on.
func (c *Console) Bind(rt *runtime.Runtime) {
	c.rt = rt
	c.stopListen = rt.Changes().Listen(c.onBroadcast)
}

// SetOffline enables the push command against an in-memory host.
func (c *Console) SetOffline(h *memhost.Host) {
	c.opts.Offline = h
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output.
func (c *Console) Stdout() io.Writer {
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return c.writer()
}

// Run starts the interactive command loop. It returns when ctx is done or
// the operator quits; cancel is called on quit.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			c.println("Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the operator asked to
// quit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "sub", "s":
		c.cmdSub(ctx, input, args)
	case "get", "g":
		c.cmdGet(args)
	case "text":
		c.cmdText(args)
	case "has":
		c.cmdHas(args)
	case "keys", "k":
		c.cmdKeys()
	case "teardown":
		c.cmdTeardown(ctx)
	case "push":
		c.cmdPush(input, args)

	case "start":
		c.cmdStart(args)
	case "pause":
		c.withID(args, "pause", c.rt.Timers().Pause)
	case "resume":
		c.withID(args, "resume", c.rt.Timers().Resume)
	case "reset":
		c.withID(args, "reset", c.rt.Timers().Reset)
	case "dismiss":
		c.withID(args, "dismiss", c.rt.Timers().Dismiss)
	case "snooze":
		c.cmdSnooze(args)
	case "timers", "t":
		c.cmdTimers()
	case "watch":
		c.cmdWatch()

	case "status":
		c.cmdStatus()

	case "quit", "exit", "q":
		c.println("Exiting...")
		return true

	default:
		c.printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	c.println(`
livecard commands:
  Templates:
    sub <key> <template>   - Subscribe a template under key
    get <key>              - Show the cached boolean for key
    text <key>             - Show the last rendered text for key
    has <key>              - Report whether key is subscribed
    keys                   - List subscribed keys
    teardown               - Close every template channel
    push <key> <value>     - Push a result (offline mode only)

  Timers:
    start <id> [seconds]   - Start a countdown (seconds default to the preset)
    pause <id>             - Pause a running countdown
    resume <id>            - Resume a paused countdown
    reset <id>             - Remove a countdown
    dismiss <id>           - Remove a countdown
    snooze <id> <seconds>  - Restart a countdown keeping its expiry action
    timers                 - List countdowns
    watch                  - Toggle printing countdowns on every change

  General:
    status                 - Show runtime status
    help                   - Show this help
    quit                   - Exit`)
}

// cmdSub takes everything after the key as the template text, so templates
// may contain spaces.
func (c *Console) cmdSub(ctx context.Context, input string, args []string) {
	if len(args) < 2 {
		c.println("Usage: sub <key> <template>")
		return
	}
	key := args[0]
	text := restAfter(input, 2)

	if err := c.rt.Templates().Subscribe(ctx, key, text, c.onChange, nil, nil); err != nil {
		c.printf("Subscribe failed: %v\n", err)
		return
	}
	c.printf("Subscribed %s\n", key)
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		c.println("Usage: get <key>")
		return
	}
	entry, ok := c.rt.Templates().Lookup(args[0])
	if !ok {
		c.printf("%s: false (no result yet)\n", args[0])
		return
	}
	freshness := "stale"
	if entry.Fresh {
		freshness = "fresh"
	}
	c.printf("%s: %t raw=%q captured=%s (%s)\n",
		entry.Key, entry.Value, entry.Raw, entry.CapturedAt.Format(time.TimeOnly), freshness)
}

func (c *Console) cmdText(args []string) {
	if len(args) != 1 {
		c.println("Usage: text <key>")
		return
	}
	text, ok := c.rt.Templates().RenderedText(args[0])
	if !ok {
		c.printf("%s: (nothing rendered)\n", args[0])
		return
	}
	c.printf("%s: %s\n", args[0], text)
}

func (c *Console) cmdHas(args []string) {
	if len(args) != 1 {
		c.println("Usage: has <key>")
		return
	}
	c.printf("%s: %t\n", args[0], c.rt.Templates().HasSubscription(args[0]))
}

func (c *Console) cmdKeys() {
	keys := c.rt.Templates().Keys()
	if len(keys) == 0 {
		c.println("No subscriptions")
		return
	}
	for _, k := range keys {
		c.printf("  %s\n", k)
	}
}

func (c *Console) cmdTeardown(ctx context.Context) {
	outcomes := c.rt.Templates().TeardownAll(ctx)
	for _, o := range outcomes {
		switch {
		case o.Pending:
			c.printf("  %s: pending\n", o.Key)
		case o.Err != nil:
			c.printf("  %s: %v\n", o.Key, o.Err)
		default:
			c.printf("  %s: closed\n", o.Key)
		}
	}
	c.printf("Closed %d channels\n", len(outcomes))
}

func (c *Console) cmdPush(input string, args []string) {
	if c.opts.Offline == nil {
		c.println("push is only available in offline mode")
		return
	}
	if len(args) < 2 {
		c.println("Usage: push <key> <value>")
		return
	}
	n := c.opts.Offline.Push(args[0], parseValue(restAfter(input, 2)))
	if n == 0 {
		c.printf("%s has no open channel\n", args[0])
	}
}

func (c *Console) cmdStart(args []string) {
	if len(args) < 1 || len(args) > 2 {
		c.println("Usage: start <id> [seconds]")
		return
	}
	id := args[0]

	var seconds int
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			c.printf("Invalid seconds: %s\n", args[1])
			return
		}
		seconds = n
	} else {
		preset, ok := c.rt.Preset(id)
		if !ok {
			c.printf("No preset %q; give seconds explicitly\n", id)
			return
		}
		seconds = preset.Seconds
	}

	c.rt.Timers().Start(id, seconds, c.onExpire)
	c.printf("Started %s (%ds)\n", id, seconds)
}

func (c *Console) cmdSnooze(args []string) {
	if len(args) != 2 {
		c.println("Usage: snooze <id> <seconds>")
		return
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil {
		c.printf("Invalid seconds: %s\n", args[1])
		return
	}
	c.rt.Timers().Snooze(args[0], seconds)
	c.printf("Snoozed %s (%ds)\n", args[0], seconds)
}

func (c *Console) withID(args []string, verb string, op func(id string)) {
	if len(args) != 1 {
		c.printf("Usage: %s <id>\n", verb)
		return
	}
	op(args[0])
	c.printTimer(args[0])
}

func (c *Console) cmdTimers() {
	records := c.rt.Timers().Records()
	if len(records) == 0 {
		c.println("No timers")
		return
	}
	for _, r := range records {
		c.printf("  %-16s %-8s %5ds\n", r.ID, r.Status, r.Remaining)
	}
}

func (c *Console) cmdWatch() {
	c.mu.Lock()
	c.watching = !c.watching
	on := c.watching
	c.mu.Unlock()

	if on {
		c.println("Watching timers")
	} else {
		c.println("Stopped watching")
	}
}

func (c *Console) cmdStatus() {
	host := c.opts.HostName
	if c.opts.Offline != nil {
		host = "offline"
	}
	c.printf("Host:          %s\n", host)
	c.printf("Subscriptions: %d\n", c.rt.Templates().Count())
	c.printf("Cached:        %d\n", c.rt.Templates().CacheLen())
	c.printf("Timers:        %d\n", c.rt.Timers().Count())
	c.printf("Broadcasts:    %d\n", c.rt.Changes().Count())
	if id := c.rt.SessionID(); id != "" {
		c.printf("Trace session: %s\n", id)
	}
}

func (c *Console) printTimer(id string) {
	r, _ := c.rt.Timers().State(id)
	c.printf("  %s: %s %ds\n", id, r.Status, r.Remaining)
}

func (c *Console) onChange(key string, value bool, raw string) {
	c.printf("[CHANGE] %s = %t (%s)\n", key, value, raw)
}

func (c *Console) onExpire(id string) {
	c.printf("[TIMER] %s expired\n", id)
}

// onBroadcast redraws countdowns while watching.
func (c *Console) onBroadcast() {
	c.mu.Lock()
	watching := c.watching
	c.mu.Unlock()
	if !watching {
		return
	}

	var b strings.Builder
	for _, r := range c.rt.Timers().Records() {
		fmt.Fprintf(&b, "%s %s %ds  ", r.ID, r.Status, r.Remaining)
	}
	if b.Len() > 0 {
		c.printf("[TIMERS] %s\n", strings.TrimSpace(b.String()))
	}
}

// Close stops listening for changes and releases the terminal. It is safe
// to call more than once.
func (c *Console) Close() {
	c.closeOnce.Do(func() {
		if c.stopListen != nil {
			c.stopListen()
		}
		if c.rl != nil {
			c.rl.Close()
		}
	})
}

func (c *Console) writer() io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.writer(), a...)
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.writer(), format, a...)
}

// restAfter returns input with its first n whitespace-separated fields
// removed, preserving inner spacing of the remainder.
func restAfter(input string, n int) string {
	rest := strings.TrimSpace(input)
	for range n {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[i:], " \t")
	}
	return rest
}

// parseValue reads a pushed value as JSON so numbers, booleans and objects
// keep their kind; anything else is a plain string.
func parseValue(s string) any {
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return v
}
