package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes trace events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}

	switch {
	case event.Push != nil:
		attrs = append(attrs,
			slog.String("raw", event.Push.Raw),
			slog.String("family", event.Push.Family),
			slog.Bool("value", event.Push.Value),
			slog.Bool("changed", event.Push.Changed),
		)
	case event.Subscribe != nil:
		attrs = append(attrs, slog.String("outcome", event.Subscribe.Outcome.String()))
		if event.Subscribe.Template != "" {
			attrs = append(attrs, slog.String("template", event.Subscribe.Template))
		}
	case event.Teardown != nil:
		attrs = append(attrs, slog.Bool("closed", event.Teardown.Closed))
		if event.Teardown.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Teardown.Reason))
		}
	case event.Transition != nil:
		attrs = append(attrs,
			slog.String("old_status", event.Transition.OldStatus),
			slog.String("new_status", event.Transition.NewStatus),
			slog.Int("remaining", event.Transition.Remaining),
		)
		if event.Transition.Operation != "" {
			attrs = append(attrs, slog.String("op", event.Transition.Operation))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "trace", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
