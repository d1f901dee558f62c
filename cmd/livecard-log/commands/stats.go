package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/livecard/livecard-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents      int
	EventsByLayer    map[log.Layer]int
	EventsByCategory map[log.Category]int
	Sessions         map[string]*SessionStats
	Keys             map[string]*KeyStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for one process run.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
}

// KeyStats holds statistics for one template key or timer id.
type KeyStats struct {
	Pushes        int
	Changes       int
	Transitions   int
	Expirations   int
	FailedCloses  int
	LastRaw       string
	LastNewStatus string
}

// collectStats reads every event from reader.
func collectStats(reader *log.Reader) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:    make(map[log.Layer]int),
		EventsByCategory: make(map[log.Category]int),
		Sessions:         make(map[string]*SessionStats),
		Keys:             make(map[string]*KeyStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		session, ok := stats.Sessions[event.SessionID]
		if !ok {
			session = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Sessions[event.SessionID] = session
		}
		session.Events++
		if event.Timestamp.After(session.LastSeen) {
			session.LastSeen = event.Timestamp
		}

		if event.Error != nil {
			stats.Errors++
		}

		if event.Key == "" {
			continue
		}
		key, ok := stats.Keys[event.Key]
		if !ok {
			key = &KeyStats{}
			stats.Keys[event.Key] = key
		}
		switch {
		case event.Push != nil:
			key.Pushes++
			key.LastRaw = event.Push.Raw
			if event.Push.Changed {
				key.Changes++
			}
		case event.Transition != nil:
			key.Transitions++
			key.LastNewStatus = event.Transition.NewStatus
			if event.Transition.NewStatus == "EXPIRED" && event.Transition.OldStatus != "EXPIRED" {
				key.Expirations++
			}
		case event.Teardown != nil:
			if !event.Teardown.Closed {
				key.FailedCloses++
			}
		}
	}
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats, err := collectStats(reader)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== livecard Trace Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerChannel, log.LayerEngine, log.LayerTimer} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{
		log.CategoryPush, log.CategorySubscribe, log.CategoryTeardown,
		log.CategoryTransition, log.CategoryError,
	} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, s := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, s})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
		}
	}

	if len(stats.Keys) > 0 {
		keys := make([]string, 0, len(stats.Keys))
		for k := range stats.Keys {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w)
		fmt.Fprintf(w, "Keys: %d\n", len(keys))
		for _, k := range keys {
			ks := stats.Keys[k]
			fmt.Fprintf(w, "  %s\n", k)
			if ks.Pushes > 0 {
				fmt.Fprintf(w, "           Pushes: %d (changes %d), last %q\n", ks.Pushes, ks.Changes, ks.LastRaw)
			}
			if ks.Transitions > 0 {
				fmt.Fprintf(w, "           Transitions: %d, expirations %d, now %s\n",
					ks.Transitions, ks.Expirations, ks.LastNewStatus)
			}
			if ks.FailedCloses > 0 {
				fmt.Fprintf(w, "           Failed closes: %d\n", ks.FailedCloses)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
