// Package cmd contains the CLI entry points: serve, migrate, version and
// help. main.go stays a minimal shim, all routing lives here.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/resourceburglar/localqa/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. Version and help work before any
// configuration is loaded so they never fail on a broken environment.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return runMigrate()
		case "ingest":
			return runIngest()
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	// Serving is the default.
	return runServe()
}

// initLogger builds the process logger. DEBUG in the environment switches to
// debug level, LOG_JSON to JSON output.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("LOG_JSON") != "",
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func printVersionInfo() error {
	fmt.Printf("localqa v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println("localqa - retrieval-augmented question answering service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  localqa              Start the HTTP API server (default)")
	fmt.Println("  localqa serve        Start the HTTP API server")
	fmt.Println("  localqa migrate      Run database migrations and exit")
	fmt.Println("  localqa ingest       Bulk ingest: localqa ingest <namespace> <glob>")
	fmt.Println("  localqa version      Show version information")
	fmt.Println("  localqa help         Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from config.yaml and LOCALQA_* environment")
	fmt.Println("variables. Set DEBUG=1 for debug logging.")
}
