// Command livecard-log views and analyzes livecard trace files.
//
// Trace files are written by livecard when run with -trace (or log.trace in
// the config file).
//
// Usage:
//
//	livecard-log <command> [flags] <file.trace>
//
// Examples:
//
//	# View only countdown transitions
//	livecard-log view -layer timer livecard.trace
//
//	# Follow one template key
//	livecard-log view -key visibility_kitchen livecard.trace
//
//	# Export to CSV
//	livecard-log export -format csv -o trace.csv livecard.trace
//
//	# Keep one session's pushes
//	livecard-log filter -session 0f8a6c1e-... -category push -o pushes.trace livecard.trace
//
//	# Show statistics
//	livecard-log stats livecard.trace
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/livecard/livecard-go/cmd/livecard-log/commands"
)

// errUsage means the flag set already explained what was wrong.
var errUsage = errors.New("usage")

// command is one livecard-log subcommand.
type command struct {
	name    string
	summary string
	run     func(fs *flag.FlagSet, args []string) error
}

var commandTable = []command{
	{"view", "View trace file in human-readable format", runView},
	{"export", "Export trace file to JSON lines or CSV", runExport},
	{"filter", "Filter trace file and write to new file", runFilter},
	{"stats", "Show statistics about the trace file", runStats},
}

func usage() string {
	var b strings.Builder
	b.WriteString("livecard-log - livecard Trace Analyzer\n\n")
	b.WriteString("Usage:\n  livecard-log <command> [flags] <file.trace>\n\nCommands:\n")
	for _, c := range commandTable {
		fmt.Fprintf(&b, "  %-8s %s\n", c.name, c.summary)
	}
	b.WriteString("\nUse \"livecard-log <command> -help\" for more information about a command.\n")
	return b.String()
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage())
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "-h", "-help", "--help", "help":
		fmt.Print(usage())
		return
	}

	for _, c := range commandTable {
		if c.name != name {
			continue
		}
		fs := flag.NewFlagSet(c.name, flag.ContinueOnError)
		fs.Usage = func() {
			fmt.Fprintf(os.Stderr, "livecard-log %s - %s\n\nUsage:\n  livecard-log %s [flags] <file.trace>\n\nFlags:\n",
				c.name, c.summary, c.name)
			fs.PrintDefaults()
		}

		err := c.run(fs, os.Args[2:])
		switch {
		case err == nil:
			return
		case errors.Is(err, flag.ErrHelp):
			return
		case errors.Is(err, errUsage):
			os.Exit(2)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
	fmt.Fprint(os.Stderr, usage())
	os.Exit(1)
}

// tracePath parses args and returns the single trace file argument.
func tracePath(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return "", err
		}
		return "", errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one trace file path required")
		fs.Usage()
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func runView(fs *flag.FlagSet, args []string) error {
	layer := fs.String("layer", "", "Filter by layer (channel, engine, timer)")
	category := fs.String("category", "", "Filter by category (push, subscribe, teardown, transition, error)")
	key := fs.String("key", "", "Filter by template key or timer id")

	path, err := tracePath(fs, args)
	if err != nil {
		return err
	}

	filter := commands.ViewFilter{Key: *key}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}
	return commands.RunView(path, filter, os.Stdout)
}

func runExport(fs *flag.FlagSet, args []string) error {
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path, err := tracePath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runFilter(fs *flag.FlagSet, args []string) error {
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	fs.StringVar(&opts.Key, "key", "", "Filter by template key or timer id")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (channel, engine, timer)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (push, subscribe, teardown, transition, error)")

	path, err := tracePath(fs, args)
	if err != nil {
		return err
	}
	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		return errUsage
	}
	return commands.RunFilter(path, opts, os.Stdout)
}

func runStats(fs *flag.FlagSet, args []string) error {
	path, err := tracePath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
