// Package main is the entry point for the git-deps command-line tool,
// which infers which earlier commits a given commit depends on.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aspiers/git-deps/internal/depengine"
	"github.com/aspiers/git-deps/internal/depoutput"
	"github.com/aspiers/git-deps/internal/gitcore"
	"github.com/aspiers/git-deps/internal/termcolor"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// stringList accumulates repeated -exclude flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	initLogger()

	repoPath := flag.String("repo", getEnv("GITDEPS_REPO", "."), "Path to git repository")
	recurse := flag.Bool("recurse", false, "Recursively infer dependencies of dependencies")
	contextLines := flag.Int("context-lines", 1, "Lines of diff context to expand around each hunk")
	var excludes stringList
	flag.Var(&excludes, "exclude", "Exclude commits reachable from this commit-ish (repeatable)")
	debug := flag.Bool("debug", false, "Enable debug tracing of the inference driver loop")
	logMode := flag.Bool("log", false, "Print a full log entry after each dependency")
	jsonMode := flag.Bool("json", false, "Emit a JSON dependency graph instead of text")
	serve := flag.Bool("serve", false, "Serve a live graph view over HTTP instead of printing")
	bindIP := flag.String("bind-ip", getEnv("GITDEPS_HOST", "127.0.0.1"), "Address to bind when -serve is given")
	port := flag.String("port", getEnv("GITDEPS_PORT", "8080"), "Port to listen on when -serve is given")
	colorFlag := flag.String("color", "auto", "Color output: auto, always, never")
	noColor := flag.Bool("no-color", false, "Disable color output")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("git-deps %s (%s)\n", version, commit)
		os.Exit(0)
	}

	colorMode := termcolor.ColorAuto
	if *noColor {
		colorMode = termcolor.ColorNever
	} else if *colorFlag != "auto" {
		var err error
		colorMode, err = termcolor.ParseColorMode(*colorFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	cw := termcolor.NewWriter(os.Stderr, colorMode)

	seedRev := "HEAD"
	if args := flag.Args(); len(args) > 0 {
		seedRev = args[0]
	}

	repo, err := gitcore.NewRepository(*repoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed to open repository at %q: %v\n", cw.Red("error:"), *repoPath, err)
		os.Exit(1)
	}

	cfg := depengine.DefaultConfig()
	cfg.Recurse = *recurse
	cfg.ContextLines = *contextLines
	cfg.ExcludeCommits = excludes
	cfg.Debug = *debug
	if *debug {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	engine := depengine.New(cfg, repo)

	seed, err := gitcore.ResolveRevision(repo, seedRev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cw.Red("error:"), err)
		os.Exit(1)
	}

	var jsonListener *depoutput.JSONListener
	var hub *graphHub
	switch {
	case *serve:
		jsonListener = depoutput.NewJSONListener(repo)
		jsonListener.SetRoot(seedRev, seed)
		hub = newGraphHub()
		engine.AddListener(jsonListener)
		engine.AddListener(hub)
	case *jsonMode:
		jsonListener = depoutput.NewJSONListener(repo)
		jsonListener.SetRoot(seedRev, seed)
		engine.AddListener(jsonListener)
	case *recurse && termcolor.IsTerminal(os.Stderr.Fd()):
		engine.AddListener(NewTreeProgress(seed))
		engine.AddListener(depoutput.NewTextListener(os.Stdout, *recurse, *logMode))
	default:
		engine.AddListener(depoutput.NewTextListener(os.Stdout, *recurse, *logMode))
	}

	if *serve {
		addr := *bindIP + ":" + *port
		go func() {
			if err := engine.FindDependencies(seedRev); err != nil {
				slog.Error("inference failed", "err", err)
			}
		}()
		slog.Info("Serving dependency graph", "addr", "http://"+addr)
		if err := serveGraph(addr, repo, jsonListener, hub); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", cw.Red("error:"), err)
			os.Exit(1)
		}
		return
	}

	if err := engine.FindDependencies(seedRev); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cw.Red("error:"), err)
		os.Exit(1)
	}

	if jsonListener != nil {
		data, err := json.MarshalIndent(jsonListener.Graph(), "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", cw.Red("error:"), err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	}
}

// initLogger reads GITDEPS_LOG_LEVEL and GITDEPS_LOG_FORMAT from the
// environment, constructs the appropriate slog.Handler, and installs it
// as the default logger via slog.SetDefault.
func initLogger() {
	level := slog.LevelInfo
	switch getEnv("GITDEPS_LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if getEnv("GITDEPS_LOG_FORMAT", "text") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
