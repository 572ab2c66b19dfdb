package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
)

// runPlan resolves the configuration and prints the deployment it
// describes. It does not call docker or AWS.
func runPlan(logger *slog.Logger, stdout io.Writer, args, environ []string) int {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(stdout)
	opts := addDeployFlags(fs)
	if err := opts.parse(fs, args, environ); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		logger.Error("Invalid flags", "error", err)
		return exitUsage
	}

	cfg, err := opts.resolve(environ)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		fmt.Fprintln(stdout, err)
		return exitFailure
	}
	writePlan(stdout, cfg)
	return exitOK
}
