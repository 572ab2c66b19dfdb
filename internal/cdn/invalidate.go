// Package cdn invalidates CloudFront caches after a site is published.
package cdn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"

	"github.com/lstoll/site-deploy/internal/siteconfig"
)

// InvalidationPath is invalidated on every deploy.
const InvalidationPath = "/*"

// API is the part of the CloudFront client used here.
type API interface {
	CreateInvalidation(ctx context.Context, in *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// Result describes what Invalidate did.
type Result struct {
	Skipped         bool
	Reason          string
	DistributionID  string
	InvalidationID  string
	CallerReference string
	Status          string
}

// Invalidator issues cache invalidations.
type Invalidator struct {
	Client API
	Logger *slog.Logger
	// NewCallerReference defaults to CallerReference.
	NewCallerReference func() string
}

// SkipReason returns why cfg does not allow an invalidation, or "" if it
// does. A filter only applies when it is set.
func SkipReason(cfg siteconfig.Config) string {
	if !cfg.CDN.Enabled() {
		return "no distribution configured"
	}
	if f := cfg.CDN.BranchFilter; f != "" && f != cfg.Branch {
		return fmt.Sprintf("branch %s does not match %s", cfg.Branch, f)
	}
	if f := cfg.CDN.EnvironmentFilter; f != "" && f != cfg.Environment {
		return fmt.Sprintf("environment %s does not match %s", cfg.Environment, f)
	}
	return ""
}

// Invalidate invalidates every path of the configured distribution unless
// the branch or environment filter rules it out. A skipped invalidation
// is not an error.
func (i *Invalidator) Invalidate(ctx context.Context, cfg siteconfig.Config) (Result, error) {
	res := Result{DistributionID: cfg.CDN.DistributionID}
	if reason := SkipReason(cfg); reason != "" {
		i.logger().Info("Skipping CloudFront invalidation", "reason", reason)
		res.Skipped = true
		res.Reason = reason
		return res, nil
	}

	ref := CallerReference()
	if i.NewCallerReference != nil {
		ref = i.NewCallerReference()
	}
	res.CallerReference = ref

	i.logger().Info("Invalidating CloudFront cache", "distribution_id", cfg.CDN.DistributionID)
	out, err := i.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(cfg.CDN.DistributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(ref),
			Paths: &types.Paths{
				Quantity: aws.Int32(1),
				Items:    []string{InvalidationPath},
			},
		},
	})
	if err != nil {
		return res, fmt.Errorf("failed to create invalidation: %w", err)
	}
	if out.Invalidation != nil {
		res.InvalidationID = aws.ToString(out.Invalidation.Id)
		res.Status = aws.ToString(out.Invalidation.Status)
	}
	i.logger().Info("Invalidation created", "id", res.InvalidationID)
	return res, nil
}

// CallerReference returns a fresh 32 character alphanumeric token.
func CallerReference() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (i *Invalidator) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.Default()
	}
	return i.Logger
}
