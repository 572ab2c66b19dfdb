package siteconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func baseFlags() Flags {
	return Flags{
		App:         "foo",
		Branch:      "main",
		Environment: "prod",
		AWSID:       "AKIAEXAMPLE",
		AWSSecret:   "secret",
	}
}

func TestResolveDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Resolve(baseFlags(), nil, nil)
	require.NoError(err)

	require.Equal("node:12", cfg.DockerImage)
	require.Equal("make", cfg.BuildCommand)
	require.Equal("dist", cfg.OutputDirectory)
	require.Equal("index.html", cfg.IndexFile)
	require.Equal("error.html", cfg.ErrorFile)
	require.Equal("us-east-1", cfg.AWSRegion)
	require.Equal(DefaultCDNRegion, cfg.CDN.Region)
	require.Equal(DefaultBuildTimeout, cfg.BuildTimeout)
	require.Equal(DefaultAWSTimeout, cfg.AWSTimeout)
	require.Equal(".", cfg.WorkDir)
	require.NotNil(cfg.DockerEnv)
	require.False(cfg.SkipBuild)
	require.False(cfg.CDN.Enabled())

	require.Equal(ModeIsolated, cfg.Mode)
	require.Equal("site-foo-main-prod", cfg.BucketName)
	require.Equal([]string{"/"}, cfg.Postfixes())
}

func TestResolveMissingFieldOrder(t *testing.T) {
	full := baseFlags()
	tests := []struct {
		name  string
		flags Flags
		want  string
	}{
		{
			name:  "nothing set",
			flags: Flags{},
			want:  FieldApp,
		},
		{
			name:  "app missing with branch and environment set",
			flags: Flags{Branch: "main", Environment: "prod", AWSID: "a", AWSSecret: "b"},
			want:  FieldApp,
		},
		{
			name:  "branch missing with environment missing too",
			flags: Flags{App: "foo", AWSID: "a", AWSSecret: "b"},
			want:  FieldBranch,
		},
		{
			name:  "environment missing without credentials",
			flags: Flags{App: "foo", Branch: "main"},
			want:  FieldEnvironment,
		},
		{
			name:  "credentials missing",
			flags: Flags{App: full.App, Branch: full.Branch, Environment: full.Environment},
			want:  FieldCredentials,
		},
		{
			name:  "half a key pair",
			flags: Flags{App: full.App, Branch: full.Branch, Environment: full.Environment, AWSID: "a"},
			want:  FieldCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.flags, nil, nil)
			require.Error(t, err)
			require.Equal(t, tt.want, MissingFieldOf(err))
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	env := map[string]string{
		"bamboo_OUT_DIR":    "env-out",
		"bamboo_IMAGE":      "node:20",
		"bamboo_INDEX_FILE": "home.html",
		"bamboo_AWS_REGION": "eu-west-1",
	}
	settings := &Settings{
		AWS: AWSSettings{Region: "ap-southeast-2"},
		Build: BuildSettings{
			Image:     "node:18",
			Command:   "npm run build",
			OutDir:    "settings-out",
			IndexFile: "settings.html",
			ErrorFile: "404.html",
		},
	}

	t.Run("flag beats env and settings", func(t *testing.T) {
		flags := baseFlags()
		flags.OutDir = "flag-out"
		flags.Region = "us-west-2"
		cfg, err := Resolve(flags, env, settings)
		require.NoError(t, err)
		require.Equal(t, "flag-out", cfg.OutputDirectory)
		require.Equal(t, "us-west-2", cfg.AWSRegion)
	})

	t.Run("env beats settings", func(t *testing.T) {
		cfg, err := Resolve(baseFlags(), env, settings)
		require.NoError(t, err)
		require.Equal(t, "env-out", cfg.OutputDirectory)
		require.Equal(t, "node:20", cfg.DockerImage)
		require.Equal(t, "home.html", cfg.IndexFile)
		require.Equal(t, "eu-west-1", cfg.AWSRegion)
	})

	t.Run("settings beat defaults", func(t *testing.T) {
		cfg, err := Resolve(baseFlags(), nil, settings)
		require.NoError(t, err)
		require.Equal(t, "npm run build", cfg.BuildCommand)
		require.Equal(t, "404.html", cfg.ErrorFile)
		require.Equal(t, "ap-southeast-2", cfg.AWSRegion)
	})
}

func TestResolveEnvPrefixes(t *testing.T) {
	require := require.New(t)
	env := map[string]string{
		"bamboo_env_API_URL":    "https://api.example.com",
		"bamboo_env_BUILD_MODE": "production",
		"bamboo_app":            "from-env",
		"bamboo_branch":         "develop",
		"bamboo_environment":    "staging",
		"bamboo_NO_BUILD":       "true",
		"APP":                   "ignored",
		"PATH":                  "/usr/bin",
	}
	cfg, err := Resolve(Flags{AWSID: "a", AWSSecret: "b"}, env, nil)
	require.NoError(err)

	require.Equal("from-env", cfg.App)
	require.Equal("develop", cfg.Branch)
	require.Equal("staging", cfg.Environment)
	require.True(cfg.SkipBuild)
	require.Equal(map[string]string{
		"API_URL":    "https://api.example.com",
		"BUILD_MODE": "production",
	}, cfg.DockerEnv)
}

func TestResolveCustomEnvPrefix(t *testing.T) {
	flags := baseFlags()
	flags.EnvPrefix = "CI_"
	env := map[string]string{
		"CI_env_TOKEN":       "t",
		"CI_BUCKET_NAME":     "my-site",
		"bamboo_BUCKET_NAME": "ignored",
	}
	cfg, err := Resolve(flags, env, nil)
	require.NoError(t, err)
	require.Equal(t, "my-site", cfg.BucketName)
	require.Equal(t, ModeExplicit, cfg.Mode)
	require.Equal(t, map[string]string{"TOKEN": "t"}, cfg.DockerEnv)
}

func TestResolveCredentials(t *testing.T) {
	base := Flags{App: "foo", Branch: "main", Environment: "prod"}

	t.Run("settings key pair", func(t *testing.T) {
		cfg, err := Resolve(base, nil, &Settings{AWS: AWSSettings{AccessKeyID: "id", SecretAccessKey: "s"}})
		require.NoError(t, err)
		require.True(t, cfg.AWSCredentials.HasKeyPair())
		require.Equal(t, "id", cfg.AWSCredentials.AccessKeyID)
	})

	t.Run("env key pair beats settings", func(t *testing.T) {
		env := map[string]string{"bamboo_AWS_ID": "env-id", "bamboo_AWS_SECRET": "env-s"}
		cfg, err := Resolve(base, env, &Settings{AWS: AWSSettings{AccessKeyID: "id", SecretAccessKey: "s"}})
		require.NoError(t, err)
		require.Equal(t, "env-id", cfg.AWSCredentials.AccessKeyID)
		require.Equal(t, "env-s", cfg.AWSCredentials.SecretAccessKey)
	})

	t.Run("role from settings", func(t *testing.T) {
		cfg, err := Resolve(base, nil, &Settings{AWS: AWSSettings{RoleARN: "arn:aws:iam::123456789012:role/deployer"}})
		require.NoError(t, err)
		require.False(t, cfg.AWSCredentials.HasKeyPair())
		require.Equal(t, "arn:aws:iam::123456789012:role/deployer", cfg.AWSCredentials.RoleARN)
	})

	t.Run("string hides secret", func(t *testing.T) {
		c := Credentials{AccessKeyID: "AKIAEXAMPLE1234", SecretAccessKey: "topsecret"}
		require.NotContains(t, c.String(), "topsecret")
		require.True(t, strings.HasSuffix(c.String(), "1234"))
	})
}

func TestResolveSharedBucket(t *testing.T) {
	require := require.New(t)
	flags := baseFlags()
	flags.Build = "42"
	settings := &Settings{AWS: AWSSettings{SharedBucket: "shared-co"}}

	cfg, err := Resolve(flags, map[string]string{"bamboo_BUCKET_NAME_POSTFIX": "/ignored/"}, settings)
	require.NoError(err)
	require.Equal(ModeShared, cfg.Mode)
	require.Equal("shared-co", cfg.BucketName)
	require.Equal([]Destination{
		{Postfix: "/prod/foo/main/", PreserveArchives: true},
		{Postfix: "/prod/foo/main/42/", Archive: true},
	}, cfg.Destinations)

	flags.Build = ""
	cfg, err = Resolve(flags, nil, settings)
	require.NoError(err)
	require.Equal([]string{"/prod/foo/main/"}, cfg.Postfixes())
}

func TestResolveExplicitBucket(t *testing.T) {
	flags := baseFlags()
	flags.Bucket = "www.example.com"
	env := map[string]string{"bamboo_BUCKET_NAME_POSTFIX": "current, archive/7 ,current"}
	cfg, err := Resolve(flags, env, &Settings{AWS: AWSSettings{SharedBucket: "shared-co"}})
	require.NoError(t, err)
	require.Equal(t, ModeExplicit, cfg.Mode)
	require.Equal(t, "www.example.com", cfg.BucketName)
	require.Equal(t, []string{"/current/", "/archive/7/"}, cfg.Postfixes())
}

func TestResolveCDN(t *testing.T) {
	env := map[string]string{
		"bamboo_CLOUDFRONT_ID":          "E2EXAMPLE",
		"bamboo_CLOUDFRONT_BRANCH":      "main",
		"bamboo_CLOUDFRONT_ENVIRONMENT": "prod",
	}
	cfg, err := Resolve(baseFlags(), env, &Settings{CloudFront: CloudFrontSettings{ID: "ignored", Region: "us-west-2"}})
	require.NoError(t, err)
	require.True(t, cfg.CDN.Enabled())
	require.Equal(t, "E2EXAMPLE", cfg.CDN.DistributionID)
	require.Equal(t, "us-west-2", cfg.CDN.Region)
	require.Equal(t, "main", cfg.CDN.BranchFilter)
	require.Equal(t, "prod", cfg.CDN.EnvironmentFilter)
	require.False(t, cfg.CDN.Credentials.IsSet())
}

func TestBucketDerivationIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		b1, m1, d1 := deriveBucket("foo", "main", "prod", "42", "", "acme")
		b2, m2, d2 := deriveBucket("foo", "main", "prod", "42", "", "acme")
		require.Equal(t, b1, b2)
		require.Equal(t, m1, m2)
		require.Equal(t, d1, d2)
	}
}

func TestIsolatedBucketName(t *testing.T) {
	tests := []struct {
		name                     string
		prefix, app, branch, env string
		want                     string
	}{
		{name: "simple", prefix: "site", app: "foo", branch: "main", env: "prod", want: "site-foo-main-prod"},
		{name: "default prefix", app: "Foo", branch: "main", env: "prod", want: "site-foo-main-prod"},
		{name: "slashes in branch", prefix: "acme", app: "web", branch: "feature/Login_Page", env: "dev", want: "acme-web-feature-login-page-dev"},
		{
			name:   "truncated",
			prefix: "site", app: strings.Repeat("a", 40), branch: strings.Repeat("b", 40), env: "prod",
			want: "site-" + strings.Repeat("a", 40) + "-" + strings.Repeat("b", 17),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsolatedBucketName(tt.prefix, tt.app, tt.branch, tt.env)
			require.Equal(t, tt.want, got)
			require.LessOrEqual(t, len(got), 63)
		})
	}
}

func TestNormalizePostfix(t *testing.T) {
	for in, want := range map[string]string{
		"":            "/",
		"/":           "/",
		"live":        "/live/",
		"/a//b":       "/a/b/",
		" prod/foo/ ": "/prod/foo/",
	} {
		require.Equal(t, want, NormalizePostfix(in), "input %q", in)
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`aws:
  region: eu-central-1
  awsAccessKeyId: AKIA
  awsSecretAccessKey: s3cr3t
  shared-bucket: shared-co
build:
  image: node:18
cloudfront:
  id: E123
`), 0o644))
		s, err := LoadSettings(path)
		require.NoError(t, err)
		require.Equal(t, "eu-central-1", s.AWS.Region)
		require.Equal(t, "AKIA", s.AWS.AccessKeyID)
		require.Equal(t, "s3cr3t", s.AWS.SecretAccessKey)
		require.Equal(t, "shared-co", s.AWS.SharedBucket)
		require.Equal(t, "node:18", s.Build.Image)
		require.Equal(t, "E123", s.CloudFront.ID)
	})

	t.Run("empty", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		s, err := LoadSettings(path)
		require.NoError(t, err)
		require.Equal(t, Settings{}, *s)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSettings(filepath.Join(dir, "nope.yaml"))
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, InvalidSettings, ce.Kind)
	})

	t.Run("syntax error", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("aws: [unterminated"), 0o644))
		_, err := LoadSettings(path)
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, InvalidSettings, ce.Kind)
	})
}

func TestResolveInvalidEnvironmentValue(t *testing.T) {
	_, err := Resolve(baseFlags(), map[string]string{"bamboo_NO_BUILD": "yes"}, nil)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, InvalidEnvironment, ce.Kind)
	require.Equal(t, "bamboo_", ce.Path)
	require.Contains(t, err.Error(), "invalid bamboo_* environment variable")
	require.NotContains(t, err.Error(), "settings file")
}

func TestEnvMap(t *testing.T) {
	m := EnvMap([]string{"A=1", "B=x=y", "EMPTY=", "=bad", "NOEQ"})
	require.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, m)
}
