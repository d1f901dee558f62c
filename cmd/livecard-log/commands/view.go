// Package commands implements the livecard-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/livecard/livecard-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer    *log.Layer
	Category *log.Category
	Key      string
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{Layer: f.Layer, Category: f.Category, Key: f.Key}
}

// timestampLayout is the fixed-width UTC timestamp used in views and exports.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format(timestampLayout)
	session := shortenID(event.SessionID)

	fmt.Fprintf(w, "%s [session:%s] %-7s %s", ts, session, event.Layer.String(), event.Category.String())
	if event.Key != "" {
		fmt.Fprintf(w, " %s", event.Key)
	}
	fmt.Fprintln(w)

	switch {
	case event.Push != nil:
		formatPushDetails(w, event.Push)
	case event.Subscribe != nil:
		formatSubscribeDetails(w, event.Subscribe)
	case event.Teardown != nil:
		formatTeardownDetails(w, event.Teardown)
	case event.Transition != nil:
		formatTransitionDetails(w, event.Transition)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a session id.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatPushDetails(w io.Writer, p *log.PushEvent) {
	fmt.Fprintf(w, "  Raw: %q\n", p.Raw)
	fmt.Fprintf(w, "  Value: %t (%s)", p.Value, p.Family)
	if p.Changed {
		fmt.Fprint(w, " changed")
	}
	fmt.Fprintln(w)
}

func formatSubscribeDetails(w io.Writer, s *log.SubscribeEvent) {
	fmt.Fprintf(w, "  Outcome: %s\n", s.Outcome.String())
	if s.Template != "" {
		fmt.Fprintf(w, "  Template: %s\n", s.Template)
	}
}

func formatTeardownDetails(w io.Writer, t *log.TeardownEvent) {
	if t.Closed {
		fmt.Fprintln(w, "  Closed")
		return
	}
	fmt.Fprintf(w, "  Close failed: %s\n", t.Reason)
}

func formatTransitionDetails(w io.Writer, t *log.TransitionEvent) {
	fmt.Fprintf(w, "  %s -> %s", t.OldStatus, t.NewStatus)
	if t.Operation != "" {
		fmt.Fprintf(w, " (%s)", t.Operation)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Remaining: %ds\n", t.Remaining)
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

// ParseLayerFlag parses a layer name from a command-line flag.
func ParseLayerFlag(s string) (log.Layer, error) {
	l, ok := log.ParseLayer(s)
	if !ok {
		return 0, fmt.Errorf("invalid layer: %s (must be channel, engine, or timer)", s)
	}
	return l, nil
}

// ParseCategoryFlag parses a category name from a command-line flag.
func ParseCategoryFlag(s string) (log.Category, error) {
	c, ok := log.ParseCategory(s)
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (must be push, subscribe, teardown, transition, or error)", s)
	}
	return c, nil
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
