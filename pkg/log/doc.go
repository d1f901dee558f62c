// Package log provides a structured event trace for livecard.
//
// The trace is separate from operational logging (slog). It captures every
// push received from the host, every subscribe and teardown outcome, and
// every countdown transition as a machine-readable event stream that can be
// replayed and filtered after the fact.
//
// # Basic Usage
//
// Components accept a Logger. Pass nil or NoopLogger to disable tracing:
//
//	// For development: trace to console via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// For later analysis: write to a binary file
//	cfg.Trace, _ = log.NewFileLogger("/var/log/livecard/session.ltrace")
//
//	// Both
//	cfg.Trace = log.NewMultiLogger(console, file)
//
// # Layers
//
//   - Channel: host push channels (opened, closed, raw pushes)
//   - Engine: interpreted template results and cache updates
//   - Timer: countdown state transitions
//
// # File Format
//
// Trace files are a sequence of CBOR-encoded events with integer keys. The
// livecard-log tool provides viewing, filtering, and export.
package log
