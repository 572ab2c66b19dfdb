package dockerbuild

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lstoll/site-deploy/internal/siteconfig"
)

type fakeRunner struct {
	name     string
	args     []string
	deadline bool
	out      string
	code     int
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string) ([]byte, int, error) {
	f.name = name
	f.args = args
	_, f.deadline = ctx.Deadline()
	return []byte(f.out), f.code, f.err
}

func testConfig() siteconfig.Config {
	return siteconfig.Config{
		DockerImage:  "node:12",
		BuildCommand: "make build",
		WorkDir:      "/src/site",
		DockerEnv: map[string]string{
			"NODE_ENV": "production",
			"API_URL":  "https://api.example.com",
		},
		BuildTimeout: time.Minute,
	}
}

func TestArgs(t *testing.T) {
	got := Args(testConfig(), "/src/site")
	require.Equal(t, []string{
		"run",
		"--volume", "/src/site:/data",
		"--workdir", "/data",
		"--rm",
		"-e", "API_URL=https://api.example.com",
		"-e", "NODE_ENV=production",
		"node:12",
		"make", "build",
	}, got)
}

func TestArgsNoEnv(t *testing.T) {
	cfg := testConfig()
	cfg.DockerEnv = nil
	cfg.BuildCommand = "make"
	require.Equal(t, []string{
		"run", "--volume", "/w:/data", "--workdir", "/data", "--rm", "node:12", "make",
	}, Args(cfg, "/w"))
}

func TestRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r := &fakeRunner{out: "built\n"}
		e := &Executor{Runner: r}
		out, err := e.Run(context.Background(), testConfig())
		require.NoError(t, err)
		require.Equal(t, "docker", r.name)
		require.True(t, r.deadline)
		require.Equal(t, "built\n", out.Output)
		require.Equal(t, 0, out.ExitCode)
		require.Equal(t, "docker", out.Command[0])
	})

	t.Run("non-zero exit", func(t *testing.T) {
		r := &fakeRunner{out: "make: *** No rule to make target 'build'.\n", code: 2}
		e := &Executor{Runner: r, Docker: "/usr/local/bin/docker"}
		out, err := e.Run(context.Background(), testConfig())
		var be *BuildError
		require.ErrorAs(t, err, &be)
		require.Equal(t, 2, be.ExitCode)
		require.Equal(t, r.out, be.Output)
		require.Equal(t, r.out, out.Output)
		require.Equal(t, "/usr/local/bin/docker", r.name)
	})

	t.Run("docker missing", func(t *testing.T) {
		e := &Executor{Runner: &fakeRunner{code: -1, err: errors.New("executable file not found in $PATH")}}
		_, err := e.Run(context.Background(), testConfig())
		require.Error(t, err)
		var be *BuildError
		require.False(t, errors.As(err, &be))
	})
}

func TestRedactEnv(t *testing.T) {
	args := []string{"run", "--rm", "-e", "NPM_TOKEN=abc=def", "-e", "EMPTY=", "node:12", "make", "-e"}
	got := RedactEnv(args)
	require.Equal(t, []string{"run", "--rm", "-e", "NPM_TOKEN=***", "-e", "EMPTY=***", "node:12", "make", "-e"}, got)
	require.Equal(t, "NPM_TOKEN=abc=def", args[3])
}
