package s3site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ErrBucketOwnedElsewhere is returned when the bucket name is taken by
// another AWS account.
var ErrBucketOwnedElsewhere = errors.New("a bucket with this name already exists outside your account")

// ProvisionResult is the outcome of EnsureBucket.
type ProvisionResult struct {
	Bucket  string
	Created bool
	Err     error
}

// OK reports whether the bucket is ready to publish to.
func (r ProvisionResult) OK() bool {
	return r.Err == nil
}

// Provisioner makes sure the target bucket exists.
type Provisioner struct {
	Client BucketAPI
	Logger *slog.Logger
}

// EnsureBucket creates bucket in region unless a bucket with exactly that
// name is already visible to the caller. Existing buckets are not modified.
func (p *Provisioner) EnsureBucket(ctx context.Context, bucket, region string) ProvisionResult {
	res := ProvisionResult{Bucket: bucket}

	exists, err := p.bucketExists(ctx, bucket)
	if err != nil {
		res.Err = fmt.Errorf("listing buckets: %w", err)
		return res
	}
	if exists {
		p.logger().Debug("Bucket exists", "bucket", bucket)
		return res
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if region != "" && region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	p.logger().Info("Creating bucket", "bucket", bucket, "region", region)
	if _, err := p.Client.CreateBucket(ctx, in); err != nil {
		switch {
		case isOwnedByYou(err):
			return res
		case isOwnedElsewhere(err):
			res.Err = fmt.Errorf("creating bucket %s: %w", bucket, ErrBucketOwnedElsewhere)
		default:
			res.Err = fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
		return res
	}
	res.Created = true
	return res
}

func (p *Provisioner) bucketExists(ctx context.Context, bucket string) (bool, error) {
	paginator := s3.NewListBucketsPaginator(p.Client, &s3.ListBucketsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return false, err
		}
		for _, b := range page.Buckets {
			if aws.ToString(b.Name) == bucket {
				return true, nil
			}
		}
	}
	return false, nil
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func isOwnedByYou(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	return apiErrorCode(err) == "BucketAlreadyOwnedByYou"
}

func isOwnedElsewhere(err error) bool {
	var exists *types.BucketAlreadyExists
	if errors.As(err, &exists) {
		return true
	}
	return apiErrorCode(err) == "BucketAlreadyExists"
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
