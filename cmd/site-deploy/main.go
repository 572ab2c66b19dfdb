package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// logLevel is raised to debug by --debug.
var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, logger, os.Stdout, os.Args[1:], os.Environ())
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, logger *slog.Logger, stdout io.Writer, args, environ []string) int {
	if len(args) < 1 {
		usage(stdout)
		return exitUsage
	}

	switch args[0] {
	case "build":
		return runBuild(ctx, logger, stdout, args[1:], environ)
	case "plan":
		return runPlan(logger, stdout, args[1:], environ)
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		usage(stdout)
		return exitUsage
	}
}

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: site-deploy <command> [flags]\n")
	fmt.Fprintf(w, "\nCommands:\n")
	fmt.Fprintf(w, "  build    Build the site in docker and publish it to S3\n")
	fmt.Fprintf(w, "  plan     Print what build would do without doing it\n")
	fmt.Fprintf(w, "\nRun site-deploy <command> -h for the flags of a command.\n")
}
