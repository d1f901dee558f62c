package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func decodeSlogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode slog output %q: %v", buf.String(), err)
	}
	return m
}

func TestSlogAdapterPush(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		SessionID: "s1",
		Layer:     LayerEngine,
		Category:  CategoryPush,
		Key:       "door",
		Push:      &PushEvent{Raw: "open", Family: "BOOLEAN", Value: true, Changed: true},
	})

	m := decodeSlogLine(t, &buf)
	if m["msg"] != "trace" {
		t.Errorf("msg = %v, want trace", m["msg"])
	}
	if m["level"] != "DEBUG" {
		t.Errorf("level = %v, want DEBUG", m["level"])
	}
	if m["key"] != "door" || m["raw"] != "open" || m["changed"] != true {
		t.Errorf("unexpected attrs: %v", m)
	}
	if m["layer"] != "ENGINE" || m["category"] != "PUSH" {
		t.Errorf("layer/category = %v/%v", m["layer"], m["category"])
	}
}

func TestSlogAdapterTransition(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Layer:      LayerTimer,
		Category:   CategoryTransition,
		Key:        "oven",
		Transition: &TransitionEvent{OldStatus: "RUNNING", NewStatus: "PAUSED", Remaining: 6, Operation: "pause"},
	})

	m := decodeSlogLine(t, &buf)
	if m["new_status"] != "PAUSED" || m["remaining"] != float64(6) || m["op"] != "pause" {
		t.Errorf("unexpected attrs: %v", m)
	}
}

func TestSlogAdapterFilteredByLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	adapter.Log(Event{Category: CategoryError, Error: &ErrorEventData{Message: "x"}})

	if buf.Len() != 0 {
		t.Errorf("debug trace written at info level: %q", buf.String())
	}
}
