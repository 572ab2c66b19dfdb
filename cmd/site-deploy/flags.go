package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lstoll/site-deploy/internal/siteconfig"
)

// envFlagPrefix prefixes the environment variables that can stand in for
// unset command line flags.
const envFlagPrefix = "SITE_DEPLOY_"

// parseEnvFlags fills flags that were not set on the command line from
// the environment. The variable name is envFlagPrefix + the flag name
// upper-cased, with dashes replaced by underscores. Only the named flags
// are considered.
func parseEnvFlags(fs *flag.FlagSet, lookup func(string) (string, bool), names ...string) error {
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		seen[f.Name] = true
	})

	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil || seen[name] {
			continue
		}
		envName := envFlagPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if val, ok := lookup(envName); ok {
			if err := f.Value.Set(val); err != nil {
				return fmt.Errorf("invalid value for environment variable %s: %w", envName, err)
			}
		}
	}
	return nil
}

// envLookup returns a lookup function over an os.Environ style list.
func envLookup(environ []string) func(string) (string, bool) {
	m := siteconfig.EnvMap(environ)
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

// deployFlags are the flags shared by build and plan.
type deployFlags struct {
	siteconfig.Flags
	settings string
	debug    bool
	auth     *awsAuthConfig
}

// envFlags are the operational flags that may come from SITE_DEPLOY_*.
// Deployment values use the prefixed CI variables instead.
var envFlags = []string{"settings", "env-prefix", "debug", "build-timeout", "aws-timeout", "oidc-issuer", "oidc-client-id", "oidc-client-secret"}

func addDeployFlags(fs *flag.FlagSet) *deployFlags {
	f := &deployFlags{}
	fs.StringVar(&f.App, "app", "", "Application name (required)")
	fs.StringVar(&f.Branch, "branch", "", "Branch being deployed (required)")
	fs.StringVar(&f.Environment, "environment", "", "Target environment (required)")
	fs.StringVar(&f.Build, "build", "", "Build number, archived separately in a shared bucket")
	fs.BoolVar(&f.NoBuild, "no-build", false, "Skip the docker build")
	fs.StringVar(&f.settings, "settings", "", "Path to the YAML settings file")
	fs.StringVar(&f.AWSID, "AWS_ID", "", "AWS access key id")
	fs.StringVar(&f.AWSSecret, "AWS_SECRET", "", "AWS secret access key")
	fs.StringVar(&f.OutDir, "out-dir", "", "Directory the build writes the site to (default \"dist\")")
	fs.StringVar(&f.Bucket, "bucket", "", "Publish to this bucket instead of a derived one")
	fs.StringVar(&f.Region, "region", "", "AWS region (default \"us-east-1\")")
	fs.StringVar(&f.EnvPrefix, "env-prefix", siteconfig.DefaultEnvPrefix, "Prefix of the CI environment variables")
	fs.DurationVar(&f.BuildTimeout, "build-timeout", siteconfig.DefaultBuildTimeout, "Maximum duration of the docker build")
	fs.DurationVar(&f.AWSTimeout, "aws-timeout", siteconfig.DefaultAWSTimeout, "Maximum duration of each AWS stage")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	f.auth = addAWSAuthFlags(fs)
	return f
}

// parse parses args and applies the environment fallbacks. Errors are
// usage errors.
func (f *deployFlags) parse(fs *flag.FlagSet, args, environ []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if err := parseEnvFlags(fs, envLookup(environ), envFlags...); err != nil {
		return err
	}
	if f.debug {
		logLevel.Set(slog.LevelDebug)
	}
	return nil
}

// resolve loads the settings file, if any, and resolves the deployment.
func (f *deployFlags) resolve(environ []string) (siteconfig.Config, error) {
	var settings *siteconfig.Settings
	if f.settings != "" {
		s, err := siteconfig.LoadSettings(f.settings)
		if err != nil {
			return siteconfig.Config{}, err
		}
		settings = s
	}
	wd, err := os.Getwd()
	if err != nil {
		return siteconfig.Config{}, fmt.Errorf("getting working directory: %w", err)
	}
	flags := f.Flags
	flags.WorkDir = wd
	return siteconfig.Resolve(flags, siteconfig.EnvMap(environ), settings)
}
