// Package dockerbuild runs a site's build command inside a Docker container.
package dockerbuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lstoll/site-deploy/internal/siteconfig"
)

// ContainerWorkDir is where the working directory is mounted in the
// container.
const ContainerWorkDir = "/data"

// Output is the result of a finished build.
type Output struct {
	Command  []string
	Output   string
	ExitCode int
}

// BuildError is returned when the build container exits non-zero.
type BuildError struct {
	ExitCode int
	Output   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build exited with code %d", e.ExitCode)
}

// Runner runs a command to completion and returns its combined output. A
// non-zero exit is reported through exitCode, not err.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (output []byte, exitCode int, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return out, exitErr.ExitCode(), nil
		}
		if ctx.Err() != nil {
			return out, -1, fmt.Errorf("running %s: %w", name, ctx.Err())
		}
		return out, -1, fmt.Errorf("running %s: %w", name, err)
	}
	return out, 0, nil
}

// Executor builds sites with docker.
type Executor struct {
	Runner Runner
	Logger *slog.Logger
	// Docker is the docker binary, "docker" if empty.
	Docker string
}

// Args returns the docker arguments for cfg. Environment variables are
// passed in key order so the command line is stable.
func Args(cfg siteconfig.Config, workDir string) []string {
	args := []string{
		"run",
		"--volume", workDir + ":" + ContainerWorkDir,
		"--workdir", ContainerWorkDir,
		"--rm",
	}
	keys := make([]string, 0, len(cfg.DockerEnv))
	for k := range cfg.DockerEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+cfg.DockerEnv[k])
	}
	args = append(args, cfg.DockerImage)
	return append(args, strings.Fields(cfg.BuildCommand)...)
}

// RedactEnv returns a copy of docker args with the value of every -e entry
// replaced, so the command line can be printed.
func RedactEnv(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 1; i < len(out); i++ {
		if out[i-1] != "-e" {
			continue
		}
		if k, _, ok := strings.Cut(out[i], "="); ok {
			out[i] = k + "=***"
		}
	}
	return out
}

// Run runs the build and blocks until the container exits.
func (e *Executor) Run(ctx context.Context, cfg siteconfig.Config) (Output, error) {
	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return Output{}, fmt.Errorf("resolving working directory: %w", err)
	}
	docker := e.Docker
	if docker == "" {
		docker = "docker"
	}
	args := Args(cfg, workDir)

	if cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.BuildTimeout)
		defer cancel()
	}

	e.logger().Info("Running build", "image", cfg.DockerImage, "command", cfg.BuildCommand, "env_count", len(cfg.DockerEnv))
	out, code, err := e.Runner.Run(ctx, docker, args)
	res := Output{
		Command:  append([]string{docker}, args...),
		Output:   string(out),
		ExitCode: code,
	}
	if err != nil {
		return res, fmt.Errorf("docker build: %w", err)
	}
	if code != 0 {
		return res, &BuildError{ExitCode: code, Output: res.Output}
	}
	e.logger().Info("Build finished")
	return res, nil
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
