package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/livecard/livecard-go/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
// Empty fields match everything.
type FilterOptions struct {
	Output    string
	SessionID string
	Key       string
	TimeStart string
	TimeEnd   string
	Layer     string
	Category  string
}

// parseBound parses an optional RFC3339 time flag.
func parseBound(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return &t, nil
}

// buildFilter converts command-line options into a log.Filter.
func buildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{SessionID: opts.SessionID, Key: opts.Key}

	var err error
	if filter.TimeStart, err = parseBound("time-start", opts.TimeStart); err != nil {
		return log.Filter{}, err
	}
	if filter.TimeEnd, err = parseBound("time-end", opts.TimeEnd); err != nil {
		return log.Filter{}, err
	}

	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// copyEvents drains reader into dst and returns how many events it copied.
func copyEvents(dst log.Logger, reader *log.Reader) (int, error) {
	n := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to read event: %w", err)
		}
		dst.Log(event)
		n++
	}
}

// RunFilter copies the events matching opts into a new trace file and
// reports the count on w.
func RunFilter(path string, opts FilterOptions, w io.Writer) error {
	filter, err := buildFilter(opts)
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output trace: %w", err)
	}

	count, copyErr := copyEvents(out, reader)
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		return copyErr
	case out.Dropped() > 0:
		return fmt.Errorf("failed to write %d events to %s", out.Dropped(), opts.Output)
	case closeErr != nil:
		return fmt.Errorf("failed to close output trace: %w", closeErr)
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", count, opts.Output)
	return nil
}
