// Package siteconfig resolves the configuration of a single site deployment
// from command line flags, the process environment and a settings file.
package siteconfig

import (
	"strings"
	"time"
)

const (
	DefaultDockerImage     = "node:12"
	DefaultBuildCommand    = "make"
	DefaultOutputDirectory = "dist"
	DefaultIndexFile       = "index.html"
	DefaultErrorFile       = "error.html"
	DefaultRegion          = "us-east-1"
	DefaultBucketPrefix    = "site"
	DefaultEnvPrefix       = "bamboo_"

	DefaultBuildTimeout = 30 * time.Minute
	DefaultAWSTimeout   = 15 * time.Minute

	// CloudFront is a global service, its API lives in us-east-1.
	DefaultCDNRegion = "us-east-1"
)

// BucketMode describes how the target bucket was chosen.
type BucketMode string

const (
	// ModeExplicit means the bucket name was given directly.
	ModeExplicit BucketMode = "explicit"
	// ModeShared publishes under app/branch/environment paths of one
	// common bucket.
	ModeShared BucketMode = "shared"
	// ModeIsolated gives every app/branch/environment its own bucket.
	ModeIsolated BucketMode = "isolated"
)

// Destination is a path inside the bucket that the output directory is
// mirrored to.
type Destination struct {
	// Postfix always starts and ends with a slash. "/" is the bucket root.
	Postfix string
	// PreserveArchives keeps child directories holding an ArchiveMarker
	// out of mirror deletion.
	PreserveArchives bool
	// Archive marks the destination as a build archive. Publishing writes
	// an ArchiveMarker object into it.
	Archive bool
}

// ArchiveMarker is the object written at the top of every build archive.
const ArchiveMarker = ".site-deploy-build"

// MarkerKey returns the key of the archive marker for the destination.
func (d Destination) MarkerKey() string {
	return d.KeyPrefix() + ArchiveMarker
}

// KeyPrefix returns the S3 key prefix for the destination, "" for the root.
func (d Destination) KeyPrefix() string {
	return strings.TrimPrefix(d.Postfix, "/")
}

// Credentials identify the AWS principal used for a deployment. Either the
// static key pair or the role ARN is set.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	// RoleARN is assumed through OIDC web identity when no key pair is set.
	RoleARN    string
	OIDCIssuer string
}

// HasKeyPair reports whether both halves of the static key pair are set.
func (c Credentials) HasKeyPair() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// IsSet reports whether the credentials can be used at all.
func (c Credentials) IsSet() bool {
	return c.HasKeyPair() || c.RoleARN != ""
}

// String never prints the secret.
func (c Credentials) String() string {
	switch {
	case c.HasKeyPair():
		return "key " + maskKey(c.AccessKeyID)
	case c.RoleARN != "":
		return "role " + c.RoleARN
	default:
		return "none"
	}
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}

// CDNConfig configures the optional CloudFront invalidation.
type CDNConfig struct {
	DistributionID string
	Region         string
	// Credentials are only set when CloudFront uses a different principal
	// than the bucket.
	Credentials       Credentials
	BranchFilter      string
	EnvironmentFilter string
}

// Enabled reports whether an invalidation was requested.
func (c CDNConfig) Enabled() bool {
	return c.DistributionID != ""
}

// Config is the fully resolved configuration of one deployment. It is built
// once by Resolve and never modified afterwards.
type Config struct {
	App         string
	Branch      string
	Environment string
	BuildNumber string

	DockerImage     string
	BuildCommand    string
	OutputDirectory string
	IndexFile       string
	ErrorFile       string
	SkipBuild       bool
	DockerEnv       map[string]string
	WorkDir         string

	BucketName   string
	Mode         BucketMode
	Destinations []Destination

	AWSRegion      string
	AWSCredentials Credentials

	CDN CDNConfig

	BuildTimeout time.Duration
	AWSTimeout   time.Duration
}

// Postfixes returns the destination postfixes in publish order.
func (c Config) Postfixes() []string {
	out := make([]string, len(c.Destinations))
	for i, d := range c.Destinations {
		out[i] = d.Postfix
	}
	return out
}
