package siteconfig

import (
	"time"
)

// Flags holds values given explicitly on the command line. Empty strings
// and false mean "not given".
type Flags struct {
	App         string
	Branch      string
	Environment string
	Build       string
	NoBuild     bool

	AWSID     string
	AWSSecret string
	Region    string

	OutDir string
	Bucket string

	// EnvPrefix is the environment variable prefix, DefaultEnvPrefix if
	// empty.
	EnvPrefix string
	WorkDir   string

	BuildTimeout time.Duration
	AWSTimeout   time.Duration
}

// Resolve merges flags, environment and settings into a Config. For every
// field a flag wins over the environment, the environment over the settings
// file and the settings file over the built-in default. settings may be nil.
//
// Required fields are checked in the order app, branch, environment,
// credentials and the first missing one is reported.
func Resolve(flags Flags, env map[string]string, settings *Settings) (Config, error) {
	if settings == nil {
		settings = &Settings{}
	}
	prefix := first(flags.EnvPrefix, DefaultEnvPrefix)
	general, docker := SplitEnv(env, prefix)
	ov, err := decodeOverrides(general)
	if err != nil {
		return Config{}, &ConfigError{Kind: InvalidEnvironment, Path: prefix, Err: err}
	}

	cfg := Config{
		App:         first(flags.App, ov.App),
		Branch:      first(flags.Branch, ov.Branch),
		Environment: first(flags.Environment, ov.Environment),
		BuildNumber: first(flags.Build, ov.Build),
	}
	if cfg.App == "" {
		return Config{}, missing(FieldApp)
	}
	if cfg.Branch == "" {
		return Config{}, missing(FieldBranch)
	}
	if cfg.Environment == "" {
		return Config{}, missing(FieldEnvironment)
	}

	cfg.AWSCredentials = Credentials{
		AccessKeyID:     first(flags.AWSID, ov.AWSID, settings.AWS.AccessKeyID),
		SecretAccessKey: first(flags.AWSSecret, ov.AWSSecret, settings.AWS.SecretAccessKey),
	}
	if !cfg.AWSCredentials.HasKeyPair() {
		cfg.AWSCredentials = Credentials{
			RoleARN:    settings.AWS.RoleARN,
			OIDCIssuer: settings.AWS.OIDCIssuer,
		}
	}
	if !cfg.AWSCredentials.IsSet() {
		return Config{}, missing(FieldCredentials)
	}
	cfg.AWSRegion = first(flags.Region, ov.AWSRegion, settings.AWS.Region, DefaultRegion)

	cfg.SkipBuild = flags.NoBuild || ov.NoBuild
	cfg.DockerImage = first(ov.Image, settings.Build.Image, DefaultDockerImage)
	cfg.BuildCommand = first(ov.Command, settings.Build.Command, DefaultBuildCommand)
	cfg.OutputDirectory = first(flags.OutDir, ov.OutDir, settings.Build.OutDir, DefaultOutputDirectory)
	cfg.IndexFile = first(ov.IndexFile, settings.Build.IndexFile, DefaultIndexFile)
	cfg.ErrorFile = first(ov.ErrorFile, settings.Build.ErrorFile, DefaultErrorFile)
	cfg.DockerEnv = docker
	cfg.WorkDir = first(flags.WorkDir, ".")

	if bucket := first(flags.Bucket, ov.BucketName); bucket != "" {
		cfg.BucketName = bucket
		cfg.Mode = ModeExplicit
		cfg.Destinations = ParsePostfixes(ov.BucketNamePostfix)
	} else {
		cfg.BucketName, cfg.Mode, cfg.Destinations = deriveBucket(
			cfg.App, cfg.Branch, cfg.Environment, cfg.BuildNumber,
			settings.AWS.SharedBucket, settings.AWS.BucketPrefix,
		)
		if cfg.Mode == ModeIsolated && ov.BucketNamePostfix != "" {
			cfg.Destinations = ParsePostfixes(ov.BucketNamePostfix)
		}
	}

	cfg.CDN = CDNConfig{
		DistributionID: first(ov.CloudFrontID, settings.CloudFront.ID),
		Region:         first(ov.CloudFrontRegion, settings.CloudFront.Region, DefaultCDNRegion),
		Credentials: Credentials{
			AccessKeyID:     first(ov.CloudFrontAccessKeyID, settings.CloudFront.AccessKeyID),
			SecretAccessKey: first(ov.CloudFrontSecretAccessKey, settings.CloudFront.SecretAccessKey),
		},
		BranchFilter:      first(ov.CloudFrontBranch, settings.CloudFront.Branch),
		EnvironmentFilter: first(ov.CloudFrontEnvironment, settings.CloudFront.Environment),
	}

	cfg.BuildTimeout = flags.BuildTimeout
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = DefaultBuildTimeout
	}
	cfg.AWSTimeout = flags.AWSTimeout
	if cfg.AWSTimeout <= 0 {
		cfg.AWSTimeout = DefaultAWSTimeout
	}

	return cfg, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
