package siteconfig

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// EnvMap turns an os.Environ style list into a map. Later entries win.
func EnvMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// SplitEnv separates prefixed environment variables. Keys starting with
// prefix+"env_" go to docker, other keys starting with prefix go to general.
// Both have the prefix stripped. Unprefixed keys are ignored.
func SplitEnv(env map[string]string, prefix string) (general, docker map[string]string) {
	general = make(map[string]string)
	docker = make(map[string]string)
	if prefix == "" {
		return general, docker
	}
	dockerPrefix := prefix + "env_"
	for k, v := range env {
		switch {
		case strings.HasPrefix(k, dockerPrefix):
			if name := k[len(dockerPrefix):]; name != "" {
				docker[name] = v
			}
		case strings.HasPrefix(k, prefix):
			if name := k[len(prefix):]; name != "" {
				general[name] = v
			}
		}
	}
	return general, docker
}

// envOverrides are the general environment settings the resolver knows
// about. Keys are matched case-insensitively.
type envOverrides struct {
	App         string `mapstructure:"APP"`
	Branch      string `mapstructure:"BRANCH"`
	Environment string `mapstructure:"ENVIRONMENT"`
	Build       string `mapstructure:"BUILD"`
	NoBuild     bool   `mapstructure:"NO_BUILD"`

	Image     string `mapstructure:"IMAGE"`
	Command   string `mapstructure:"COMMAND"`
	OutDir    string `mapstructure:"OUT_DIR"`
	IndexFile string `mapstructure:"INDEX_FILE"`
	ErrorFile string `mapstructure:"ERROR_FILE"`

	BucketName        string `mapstructure:"BUCKET_NAME"`
	BucketNamePostfix string `mapstructure:"BUCKET_NAME_POSTFIX"`

	AWSID     string `mapstructure:"AWS_ID"`
	AWSSecret string `mapstructure:"AWS_SECRET"`
	AWSRegion string `mapstructure:"AWS_REGION"`

	CloudFrontID              string `mapstructure:"CLOUDFRONT_ID"`
	CloudFrontRegion          string `mapstructure:"CLOUDFRONT_REGION"`
	CloudFrontAccessKeyID     string `mapstructure:"CLOUDFRONT_ACCESS_KEY_ID"`
	CloudFrontSecretAccessKey string `mapstructure:"CLOUDFRONT_SECRET_ACCESS_KEY"`
	CloudFrontBranch          string `mapstructure:"CLOUDFRONT_BRANCH"`
	CloudFrontEnvironment     string `mapstructure:"CLOUDFRONT_ENVIRONMENT"`
}

func decodeOverrides(general map[string]string) (envOverrides, error) {
	var o envOverrides
	in := make(map[string]interface{}, len(general))
	for k, v := range general {
		in[k] = strings.TrimSpace(v)
	}
	if err := mapstructure.WeakDecode(in, &o); err != nil {
		return o, fmt.Errorf("decoding environment overrides: %w", err)
	}
	return o, nil
}
