package commands

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/livecard/livecard-go/pkg/log"
)

const testSession = "0f8a6c1e-2b3d-4e5f-8a9b-0c1d2e3f4a5b"

var baseTime = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

func sampleEvents() []log.Event {
	at := func(ms int) time.Time { return baseTime.Add(time.Duration(ms) * time.Millisecond) }
	return []log.Event{
		{
			Timestamp: at(0), SessionID: testSession,
			Layer: log.LayerChannel, Category: log.CategorySubscribe, Key: "visibility_kitchen",
			Subscribe: &log.SubscribeEvent{Template: "{{ is_state('light.kitchen', 'on') }}", Outcome: log.SubscribeOpened},
		},
		{
			Timestamp: at(100), SessionID: testSession,
			Layer: log.LayerEngine, Category: log.CategoryPush, Key: "visibility_kitchen",
			Push: &log.PushEvent{Raw: "on", Family: "BOOLEAN", Value: true, Changed: true},
		},
		{
			Timestamp: at(200), SessionID: testSession,
			Layer: log.LayerEngine, Category: log.CategoryPush, Key: "visibility_kitchen",
			Push: &log.PushEvent{Raw: "yes", Family: "BOOLEAN", Value: true},
		},
		{
			Timestamp: at(300), SessionID: testSession,
			Layer: log.LayerTimer, Category: log.CategoryTransition, Key: "tea",
			Transition: &log.TransitionEvent{OldStatus: "IDLE", NewStatus: "RUNNING", Remaining: 1, Operation: "start"},
		},
		{
			Timestamp: at(1300), SessionID: testSession,
			Layer: log.LayerTimer, Category: log.CategoryTransition, Key: "tea",
			Transition: &log.TransitionEvent{OldStatus: "RUNNING", NewStatus: "EXPIRED", Remaining: 0, Operation: "tick"},
		},
		{
			Timestamp: at(1400), SessionID: testSession,
			Layer: log.LayerChannel, Category: log.CategoryTeardown, Key: "visibility_kitchen",
			Teardown: &log.TeardownEvent{Reason: "socket gone"},
		},
		{
			Timestamp: at(1500), SessionID: "second-session",
			Layer: log.LayerChannel, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerChannel, Message: "connection reset", Context: "read"},
		},
	}
}

func writeTrace(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livecard.trace")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return path
}

func TestFormatPushEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[1])
	output := buf.String()

	for _, want := range []string{
		"2026-10-19T08:30:00.100000Z",
		"[session:0f8a6c1e]",
		"ENGINE",
		"PUSH visibility_kitchen",
		`Raw: "on"`,
		"Value: true (BOOLEAN) changed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatTransitionEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[4])
	output := buf.String()

	if !strings.Contains(output, "RUNNING -> EXPIRED (tick)") {
		t.Errorf("expected transition line, got: %s", output)
	}
	if !strings.Contains(output, "Remaining: 0s") {
		t.Errorf("expected remaining, got: %s", output)
	}
}

func TestFormatTeardownAndError(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[5])
	if !strings.Contains(buf.String(), "Close failed: socket gone") {
		t.Errorf("expected close failure, got: %s", buf.String())
	}

	buf.Reset()
	formatEvent(&buf, sampleEvents()[6])
	output := buf.String()
	if !strings.Contains(output, "Message: connection reset") || !strings.Contains(output, "Context: read") {
		t.Errorf("expected error details, got: %s", output)
	}
	if !strings.Contains(output, "[session:second-s]") {
		t.Errorf("expected shortened session, got: %s", output)
	}
}

func TestRunViewFilters(t *testing.T) {
	path := writeTrace(t, sampleEvents())

	timer := log.LayerTimer
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &timer}, &buf); err != nil {
		t.Fatalf("RunView() error = %v", err)
	}
	if got := strings.Count(buf.String(), "TRANSITION tea"); got != 2 {
		t.Errorf("timer view has %d transitions, want 2:\n%s", got, buf.String())
	}
	if strings.Contains(buf.String(), "PUSH") {
		t.Error("timer view contains push events")
	}

	buf.Reset()
	push := log.CategoryPush
	if err := RunView(path, ViewFilter{Category: &push, Key: "visibility_kitchen"}, &buf); err != nil {
		t.Fatalf("RunView() error = %v", err)
	}
	if got := strings.Count(buf.String(), "PUSH visibility_kitchen"); got != 2 {
		t.Errorf("push view has %d events, want 2", got)
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "nope.trace"), ViewFilter{}, &bytes.Buffer{})
	if err == nil {
		t.Error("RunView() on a missing file should fail")
	}
}

func TestCollectStats(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	stats, err := collectStats(reader)
	if err != nil {
		t.Fatalf("collectStats() error = %v", err)
	}

	if stats.TotalEvents != 7 {
		t.Errorf("TotalEvents = %d, want 7", stats.TotalEvents)
	}
	if len(stats.Sessions) != 2 {
		t.Errorf("Sessions = %d, want 2", len(stats.Sessions))
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if got := stats.EventsByLayer[log.LayerTimer]; got != 2 {
		t.Errorf("timer events = %d, want 2", got)
	}

	kitchen := stats.Keys["visibility_kitchen"]
	if kitchen == nil || kitchen.Pushes != 2 || kitchen.Changes != 1 || kitchen.LastRaw != "yes" || kitchen.FailedCloses != 1 {
		t.Errorf("kitchen stats = %+v", kitchen)
	}
	tea := stats.Keys["tea"]
	if tea == nil || tea.Transitions != 2 || tea.Expirations != 1 || tea.LastNewStatus != "EXPIRED" {
		t.Errorf("tea stats = %+v", tea)
	}
	if !stats.TimeRange.End.Equal(baseTime.Add(1500 * time.Millisecond)) {
		t.Errorf("TimeRange.End = %v", stats.TimeRange.End)
	}
}

func TestRunStatsOutput(t *testing.T) {
	path := writeTrace(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 7",
		"TIMER:",
		"TRANSITION:",
		"Sessions: 2",
		"[0f8a6c1e] 6 events",
		"Keys: 2",
		`Pushes: 2 (changes 1), last "yes"`,
		"Transitions: 2, expirations 1, now EXPIRED",
		"Failed closes: 1",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in stats output:\n%s", want, output)
		}
	}
}

func TestRunStatsEmpty(t *testing.T) {
	path := writeTrace(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output: %s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Error("empty trace should not print a time range")
	}
}

func TestRunFilter(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.trace")

	var buf bytes.Buffer
	err := RunFilter(path, FilterOptions{
		Output:    out,
		SessionID: testSession,
		Category:  "push",
	}, &buf)
	if err != nil {
		t.Fatalf("RunFilter() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 2 events") {
		t.Errorf("unexpected report: %s", buf.String())
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("filtered file has %d events, want 2", len(events))
	}
	if events[1].Push == nil || events[1].Push.Raw != "yes" {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestRunFilterTimeRange(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "window.trace")

	var buf bytes.Buffer
	err := RunFilter(path, FilterOptions{
		Output:    out,
		TimeStart: "2026-10-19T08:30:01Z",
	}, &buf)
	if err != nil {
		t.Fatalf("RunFilter() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Filtered 3 events") {
		t.Errorf("unexpected report: %s", buf.String())
	}
}

func TestBuildFilterErrors(t *testing.T) {
	tests := []FilterOptions{
		{TimeStart: "yesterday"},
		{TimeEnd: "tomorrow"},
		{Layer: "wire"},
		{Category: "message"},
	}
	for _, opts := range tests {
		if _, err := buildFilter(opts); err == nil {
			t.Errorf("buildFilter(%+v) should fail", opts)
		}
	}
}

func TestExportJSONL(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "export.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 7 {
		t.Fatalf("exported %d lines, want 7", len(lines))
	}

	var push map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &push); err != nil {
		t.Fatalf("line 2 is not JSON: %v", err)
	}
	if push["layer"] != "ENGINE" || push["category"] != "PUSH" || push["key"] != "visibility_kitchen" {
		t.Errorf("push line = %v", push)
	}
	payload, _ := push["push"].(map[string]any)
	if payload["raw"] != "on" || payload["value"] != true {
		t.Errorf("push payload = %v", payload)
	}

	var sub map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &sub); err != nil {
		t.Fatal(err)
	}
	if s, _ := sub["subscribe"].(map[string]any); s["outcome"] != "OPENED" {
		t.Errorf("subscribe line = %v", sub)
	}
}

func TestExportCSV(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := export(reader, "csv", &buf); err != nil {
		t.Fatalf("export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("rows = %d, want header + 7", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	expired := rows[5]
	if expired[4] != "tea" || expired[7] != "RUNNING" || expired[8] != "EXPIRED" || expired[10] != "tick" {
		t.Errorf("expiry row = %v", expired)
	}
	if rows[6][10] != "socket gone" {
		t.Errorf("teardown row = %v", rows[6])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("RunExport() with unknown format should fail")
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("Timer"); err != nil || l != log.LayerTimer {
		t.Errorf("ParseLayerFlag(Timer) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("ParseLayerFlag(wire) should fail")
	}
	if c, err := ParseCategoryFlag("TRANSITION"); err != nil || c != log.CategoryTransition {
		t.Errorf("ParseCategoryFlag(TRANSITION) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("frame"); err == nil {
		t.Error("ParseCategoryFlag(frame) should fail")
	}
}
