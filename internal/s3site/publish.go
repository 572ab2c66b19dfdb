package s3site

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lstoll/site-deploy/internal/siteconfig"
)

// PublishErrorKind classifies a PublishError.
type PublishErrorKind int

const (
	// MissingOutputDirectory means the build output does not exist locally.
	MissingOutputDirectory PublishErrorKind = iota + 1
)

// PublishError is returned for problems detected before anything is sent
// to S3.
type PublishError struct {
	Kind PublishErrorKind
	Path string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("no directory with the name %s, set OUT_DIR to the directory your built assets go to", e.Path)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// PublishResult describes a finished publish.
type PublishResult struct {
	Bucket  string
	Targets []TargetResult
	URLs    []string
}

// Publisher mirrors the output directory into a bucket and configures the
// bucket as a public website.
type Publisher struct {
	Client SiteAPI
	// Uploader defaults to a manager.Uploader over Client.
	Uploader *manager.Uploader
	Logger   *slog.Logger
}

// NewPublisher returns a Publisher using client for all calls.
func NewPublisher(client SiteAPI, logger *slog.Logger) *Publisher {
	return &Publisher{
		Client:   client,
		Uploader: manager.NewUploader(client),
		Logger:   logger,
	}
}

// Publish syncs cfg.OutputDirectory to every destination in order, then
// sets the website configuration and a public-read policy on bucket.
func (p *Publisher) Publish(ctx context.Context, cfg siteconfig.Config, bucket string) (PublishResult, error) {
	res := PublishResult{Bucket: bucket}

	dir := cfg.OutputDirectory
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return res, &PublishError{Kind: MissingOutputDirectory, Path: dir, Err: err}
	}

	for _, dest := range cfg.Destinations {
		tr, err := p.syncDir(ctx, bucket, dir, dest, nestedPrefixes(dest, cfg.Destinations))
		res.Targets = append(res.Targets, tr)
		if err != nil {
			return res, fmt.Errorf("syncing %s%s: %w", bucket, dest.Postfix, err)
		}
		res.URLs = append(res.URLs, WebsiteURL(bucket, cfg.AWSRegion, dest.Postfix, cfg.IndexFile))
	}

	if err := p.ConfigureWebsite(ctx, bucket, cfg.IndexFile, cfg.ErrorFile); err != nil {
		return res, err
	}
	if err := p.AllowPublicRead(ctx, bucket); err != nil {
		return res, err
	}

	p.logger().Info("Publish complete", "bucket", bucket, "destinations", len(cfg.Destinations))
	return res, nil
}

// ConfigureWebsite enables static website hosting on bucket.
func (p *Publisher) ConfigureWebsite(ctx context.Context, bucket, indexFile, errorFile string) error {
	_, err := p.Client.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
		Bucket: aws.String(bucket),
		WebsiteConfiguration: &s3types.WebsiteConfiguration{
			IndexDocument: &s3types.IndexDocument{Suffix: aws.String(indexFile)},
			ErrorDocument: &s3types.ErrorDocument{Key: aws.String(errorFile)},
		},
	})
	if err != nil {
		return fmt.Errorf("setting website configuration on %s: %w", bucket, err)
	}
	return nil
}

// AllowPublicRead lifts the public access block and grants anonymous
// s3:GetObject on every object in bucket.
func (p *Publisher) AllowPublicRead(ctx context.Context, bucket string) error {
	_, err := p.Client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(bucket),
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(false),
			IgnorePublicAcls:      aws.Bool(false),
			BlockPublicPolicy:     aws.Bool(false),
			RestrictPublicBuckets: aws.Bool(false),
		},
	})
	if err != nil {
		return fmt.Errorf("removing public access block on %s: %w", bucket, err)
	}

	policy, err := PublicReadPolicy(bucket)
	if err != nil {
		return err
	}
	if _, err := p.Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(policy),
	}); err != nil {
		return fmt.Errorf("setting bucket policy on %s: %w", bucket, err)
	}
	return nil
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Sid       string `json:"Sid"`
	Effect    string `json:"Effect"`
	Principal string `json:"Principal"`
	Action    string `json:"Action"`
	Resource  string `json:"Resource"`
}

// PublicReadPolicy returns the bucket policy allowing anonymous reads.
func PublicReadPolicy(bucket string) (string, error) {
	b, err := json.Marshal(policyDocument{
		Version: "2008-10-17",
		Statement: []policyStatement{{
			Sid:       "AllowPublicRead",
			Effect:    "Allow",
			Principal: "*",
			Action:    "s3:GetObject",
			Resource:  "arn:aws:s3:::" + bucket + "/*",
		}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding bucket policy: %w", err)
	}
	return string(b), nil
}

// nestedPrefixes returns the key prefixes of the other destinations that
// live below dest, so syncing dest does not delete them.
func nestedPrefixes(dest siteconfig.Destination, all []siteconfig.Destination) []string {
	var out []string
	for _, d := range all {
		if d.Postfix == dest.Postfix {
			continue
		}
		if strings.HasPrefix(d.Postfix, dest.Postfix) {
			out = append(out, d.KeyPrefix())
		}
	}
	return out
}

func (p *Publisher) uploader() *manager.Uploader {
	if p.Uploader == nil {
		p.Uploader = manager.NewUploader(p.Client)
	}
	return p.Uploader
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
