package siteconfig

import (
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the structured settings file shared between deployments.
type Settings struct {
	AWS        AWSSettings        `yaml:"aws"`
	Build      BuildSettings      `yaml:"build"`
	CloudFront CloudFrontSettings `yaml:"cloudfront"`
}

type AWSSettings struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"awsAccessKeyId"`
	SecretAccessKey string `yaml:"awsSecretAccessKey"`
	// SharedBucket selects shared-bucket mode when set.
	SharedBucket string `yaml:"shared-bucket"`
	BucketPrefix string `yaml:"bucket-prefix"`
	RoleARN      string `yaml:"roleArn"`
	OIDCIssuer   string `yaml:"oidcIssuer"`
}

type BuildSettings struct {
	Image     string `yaml:"image"`
	Command   string `yaml:"command"`
	OutDir    string `yaml:"outDir"`
	IndexFile string `yaml:"indexFile"`
	ErrorFile string `yaml:"errorFile"`
}

type CloudFrontSettings struct {
	ID              string `yaml:"id"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	Branch          string `yaml:"branch"`
	Environment     string `yaml:"environment"`
}

// LoadSettings reads a settings file. An empty file yields zero settings.
func LoadSettings(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Kind: InvalidSettings, Path: path, Err: err}
	}
	defer f.Close()

	s, err := DecodeSettings(f)
	if err != nil {
		return nil, &ConfigError{Kind: InvalidSettings, Path: path, Err: err}
	}
	return s, nil
}

// DecodeSettings parses settings from r.
func DecodeSettings(r io.Reader) (*Settings, error) {
	var s Settings
	if err := yaml.NewDecoder(r).Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &s, nil
}
