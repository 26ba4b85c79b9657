// Package main is the entry point for the duomark editor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/duomark/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create terminal: %v\n", err)
		return 1
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize terminal: %v\n", err)
		return 1
	}
	if err := application.SetScreen(screen); err != nil {
		application.Shutdown()
		fmt.Fprintf(os.Stderr, "Error: failed to start session: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, app.ErrQuit) || errors.Is(err, context.Canceled) {
			return 0
		}
		application.Shutdown()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() app.Options {
	var opts app.Options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", os.Getenv("DUOMARK_CONFIG"), "Path to configuration file (TOML or YAML)")
	flag.StringVar(&opts.ConfigPath, "c", os.Getenv("DUOMARK_CONFIG"), "Path to configuration file (shorthand)")
	flag.StringVar(&opts.Mode, "mode", "", "Editing mode (markdown, html)")
	flag.StringVar(&opts.Script, "script", "", "Lua preview transform script")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write logs to this file")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.ReadOnly, "readonly", false, "Open the file read-only")
	flag.BoolVar(&opts.ReadOnly, "R", false, "Open the file read-only (shorthand)")
	flag.BoolVar(&opts.Watch, "watch", true, "Reload the configuration file when it changes")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "duomark - markdown and HTML editor with live preview\n\n")
		fmt.Fprintf(os.Stderr, "Usage: duomark [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nKeys:\n")
		fmt.Fprintf(os.Stderr, "  Ctrl-S  save    Ctrl-P  toggle markdown/html    Ctrl-T  toggle preview\n")
		fmt.Fprintf(os.Stderr, "  PgUp/PgDn  scroll    Esc/Ctrl-Q  quit\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  duomark                       Open an empty buffer\n")
		fmt.Fprintf(os.Stderr, "  duomark README.md             Edit a markdown file\n")
		fmt.Fprintf(os.Stderr, "  duomark -mode html page.html  Edit HTML\n")
		fmt.Fprintf(os.Stderr, "  duomark -script fmt.lua x.md  Preview through a Lua transform\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("duomark %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: duomark edits one file at a time\n")
		os.Exit(1)
	}
	opts.Path = flag.Arg(0)

	return opts
}
