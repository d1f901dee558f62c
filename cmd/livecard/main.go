// Command livecard is an operator console for template subscriptions and
// countdown timers.
//
// It connects to a host's websocket API (or runs offline against an
// in-memory host), subscribes the templates named in its configuration and
// lets the operator drive timers and inspect results interactively.
//
// Usage:
//
//	livecard [flags]
//
// Flags:
//
//	-config string     Configuration file path
//	-url string        Host URL (overrides the config file)
//	-token string      Access token (overrides LIVECARD_TOKEN)
//	-discover          Find the host with mDNS when no URL is set
//	-iface string      Network interface for discovery
//	-log-level string  Log level: debug, info, warn, error
//	-trace string      Write a CBOR event trace to this file
//	-env string        Dotenv file to load (default ".env")
//	-offline           Use an in-memory host instead of connecting
//
// Examples:
//
//	# Connect with a token from .env
//	livecard -url http://homeassistant.local:8123
//
//	# Discover the host and record a trace
//	livecard -discover -trace /tmp/livecard.trace -log-level debug
//
//	# Try templates and timers without a host
//	livecard -offline
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/livecard/livecard-go/cmd/livecard/interactive"
	"github.com/livecard/livecard-go/pkg/config"
	"github.com/livecard/livecard-go/pkg/discovery"
	"github.com/livecard/livecard-go/pkg/host"
	"github.com/livecard/livecard-go/pkg/host/memhost"
	"github.com/livecard/livecard-go/pkg/runtime"
	"github.com/livecard/livecard-go/pkg/template"
)

// Flags holds command-line overrides.
type Flags struct {
	ConfigFile string
	URL        string
	Token      string
	Discover   bool
	Interface  string
	LogLevel   string
	Trace      string
	EnvFile    string
	Offline    bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.URL, "url", "", "Host URL (overrides the config file)")
	flag.StringVar(&flags.Token, "token", "", "Access token (overrides "+config.EnvToken+")")
	flag.BoolVar(&flags.Discover, "discover", false, "Find the host with mDNS when no URL is set")
	flag.StringVar(&flags.Interface, "iface", "", "Network interface for discovery")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.Trace, "trace", "", "Write a CBOR event trace to this file")
	flag.StringVar(&flags.EnvFile, "env", ".env", "Dotenv file to load")
	flag.BoolVar(&flags.Offline, "offline", false, "Use an in-memory host instead of connecting")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "livecard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := loadDotEnv(flags.EnvFile); err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console, err := interactive.New(interactive.Options{HostName: cfg.Host.URL})
	if err != nil {
		return err
	}
	defer console.Close()
	logger := newLogger(console.Stdout(), level)

	// The runtime starts unbound; the host is attached once connected so
	// the client can share the runtime's trace session.
	var hostImpl template.Host
	if flags.Offline {
		offline := memhost.New()
		console.SetOffline(offline)
		hostImpl = offline
	}
	rt, err := runtime.New(runtime.Options{Config: cfg, Host: hostImpl, Logger: logger})
	if err != nil {
		return err
	}
	console.Bind(rt)

	var client *host.Client
	if !flags.Offline {
		client, err = connect(ctx, cfg, rt, logger)
		if err != nil {
			rt.Close(context.Background())
			return err
		}
		rt.Rebind(client)

		go func() {
			select {
			case <-client.Done():
				if err := client.Err(); err != nil && !errors.Is(err, host.ErrClosed) {
					logger.Error("host connection lost", "error", err)
				}
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if err := rt.Start(ctx); err != nil {
		logger.Warn("some templates failed to subscribe", "error", err)
	}

	console.Run(ctx, cancel)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	for _, o := range rt.Close(shutdownCtx) {
		if o.Err != nil {
			logger.Warn("channel close failed", "key", o.Key, "error", o.Err)
		}
	}
	if client != nil {
		if err := client.Close(); err != nil && !errors.Is(err, host.ErrClosed) {
			logger.Debug("closing host connection", "error", err)
		}
	}
	return nil
}

// loadConfig merges the config file, environment and flags, in increasing
// precedence, and validates the result.
func loadConfig(f Flags) (config.Config, error) {
	cfg := config.Default()
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if f.URL != "" {
		cfg.Host.URL = f.URL
	}
	if f.Token != "" {
		cfg.Host.Token = f.Token
	}
	if f.Discover {
		cfg.Host.Discover = true
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.Trace != "" {
		cfg.Log.Trace = f.Trace
	}
	cfg.ApplyEnv()

	if f.Offline && cfg.Host.URL == "" {
		cfg.Host.URL = "offline"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// connect locates the host if needed, dials it and fetches its states.
func connect(ctx context.Context, cfg config.Config, rt *runtime.Runtime, logger *slog.Logger) (*host.Client, error) {
	url := cfg.Host.URL
	if url == "" {
		browser := discovery.NewBrowser(discovery.BrowserConfig{Interface: flags.Interface, Logger: logger})
		svc, err := browser.FindFirst(ctx)
		browser.Stop()
		if err != nil {
			return nil, fmt.Errorf("discover host: %w", err)
		}
		url, err = svc.URL()
		if err != nil {
			return nil, err
		}
		logger.Info("discovered host", "instance", svc.Instance, "url", url, "version", svc.Version)
	}

	client, err := host.Dial(ctx, host.Config{
		URL:              url,
		Token:            cfg.Host.Token,
		RateLimit:        cfg.Host.RateLimit,
		Burst:            cfg.Host.Burst,
		HandshakeTimeout: cfg.Host.HandshakeTimeout,
		Logger:           logger,
		Trace:            rt.Tracer(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected", "url", url, "version", client.Version())

	if err := client.RefreshStates(ctx); err != nil {
		logger.Warn("fetching host states failed", "error", err)
	}
	return client, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
