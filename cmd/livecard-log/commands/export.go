package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/livecard/livecard-go/pkg/log"
)

// jsonEvent is the flat JSON shape of one exported event.
type jsonEvent struct {
	Timestamp  string               `json:"timestamp"`
	SessionID  string               `json:"session_id"`
	Layer      string               `json:"layer"`
	Category   string               `json:"category"`
	Key        string               `json:"key,omitempty"`
	Push       *log.PushEvent       `json:"push,omitempty"`
	Subscribe  *jsonSubscribe       `json:"subscribe,omitempty"`
	Teardown   *log.TeardownEvent   `json:"teardown,omitempty"`
	Transition *log.TransitionEvent `json:"transition,omitempty"`
	Error      *jsonError           `json:"error,omitempty"`
}

type jsonSubscribe struct {
	Template string `json:"template,omitempty"`
	Outcome  string `json:"outcome"`
}

type jsonError struct {
	Layer   string `json:"layer"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

func toJSONEvent(event log.Event) jsonEvent {
	out := jsonEvent{
		Timestamp:  event.Timestamp.UTC().Format(timestampLayout),
		SessionID:  event.SessionID,
		Layer:      event.Layer.String(),
		Category:   event.Category.String(),
		Key:        event.Key,
		Push:       event.Push,
		Teardown:   event.Teardown,
		Transition: event.Transition,
	}
	if event.Subscribe != nil {
		out.Subscribe = &jsonSubscribe{Template: event.Subscribe.Template, Outcome: event.Subscribe.Outcome.String()}
	}
	if event.Error != nil {
		out.Error = &jsonError{Layer: event.Error.Layer.String(), Message: event.Error.Message, Context: event.Error.Context}
	}
	return out
}

// RunExport exports the trace file to the specified format. An empty
// output writes to stdout.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return export(reader, format, w)
}

func export(reader *log.Reader, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(toJSONEvent(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "layer", "category", "key", "raw", "value", "old_status", "new_status", "remaining", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var raw, value, oldStatus, newStatus, remaining, detail string
		switch {
		case event.Push != nil:
			raw = event.Push.Raw
			value = strconv.FormatBool(event.Push.Value)
		case event.Transition != nil:
			oldStatus = event.Transition.OldStatus
			newStatus = event.Transition.NewStatus
			remaining = strconv.Itoa(event.Transition.Remaining)
			detail = event.Transition.Operation
		case event.Subscribe != nil:
			detail = event.Subscribe.Outcome.String()
		case event.Teardown != nil:
			detail = "closed"
			if !event.Teardown.Closed {
				detail = event.Teardown.Reason
			}
		case event.Error != nil:
			detail = event.Error.Message
		}

		row := []string{
			event.Timestamp.UTC().Format(timestampLayout),
			event.SessionID,
			event.Layer.String(),
			event.Category.String(),
			event.Key,
			raw,
			value,
			oldStatus,
			newStatus,
			remaining,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
