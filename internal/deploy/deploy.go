// Package deploy runs the stages of a site deployment in order.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lstoll/site-deploy/internal/cdn"
	"github.com/lstoll/site-deploy/internal/dockerbuild"
	"github.com/lstoll/site-deploy/internal/s3site"
	"github.com/lstoll/site-deploy/internal/siteconfig"
)

// Stage is a step of a deployment.
type Stage int

const (
	EnsuringBucket Stage = iota + 1
	Building
	Publishing
	Invalidating
	Done
	Failed
)

func (s Stage) String() string {
	switch s {
	case EnsuringBucket:
		return "ensuring bucket"
	case Building:
		return "building"
	case Publishing:
		return "publishing"
	case Invalidating:
		return "invalidating"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError is returned by Run when a stage fails. Nothing after Stage
// was attempted and nothing before it was undone.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Provisioner ensures the target bucket exists.
type Provisioner interface {
	EnsureBucket(ctx context.Context, bucket, region string) s3site.ProvisionResult
}

// Builder runs the site build.
type Builder interface {
	Run(ctx context.Context, cfg siteconfig.Config) (dockerbuild.Output, error)
}

// Publisher uploads the build output and configures the bucket.
type Publisher interface {
	Publish(ctx context.Context, cfg siteconfig.Config, bucket string) (s3site.PublishResult, error)
}

// Invalidator invalidates the CDN cache.
type Invalidator interface {
	Invalidate(ctx context.Context, cfg siteconfig.Config) (cdn.Result, error)
}

// Report collects what each stage produced. Fields of stages that did not
// run are nil.
type Report struct {
	Config siteconfig.Config
	// Stage is Done on success, otherwise the stage that failed.
	Stage    Stage
	Bucket   s3site.ProvisionResult
	Build    *dockerbuild.Output
	Publish  *s3site.PublishResult
	CDN      *cdn.Result
	Duration time.Duration
}

// Orchestrator wires the stage implementations together. Invalidator may
// be nil when no distribution is configured.
type Orchestrator struct {
	Provisioner Provisioner
	Builder     Builder
	Publisher   Publisher
	Invalidator Invalidator
	Logger      *slog.Logger
}

// Run deploys cfg. Stages run strictly one after another and the first
// failure stops the deployment.
func (o *Orchestrator) Run(ctx context.Context, cfg siteconfig.Config) (Report, error) {
	start := time.Now()
	rep := Report{Config: cfg}
	fail := func(stage Stage, err error) (Report, error) {
		rep.Stage = stage
		rep.Duration = time.Since(start)
		o.logger().Error("Deployment failed", "stage", stage.String(), "error", err)
		return rep, &StageError{Stage: stage, Err: err}
	}

	o.logger().Info("Ensuring bucket", "bucket", cfg.BucketName, "mode", string(cfg.Mode), "region", cfg.AWSRegion)
	rep.Bucket = withTimeout(ctx, cfg.AWSTimeout, func(ctx context.Context) s3site.ProvisionResult {
		return o.Provisioner.EnsureBucket(ctx, cfg.BucketName, cfg.AWSRegion)
	})
	if !rep.Bucket.OK() {
		return fail(EnsuringBucket, rep.Bucket.Err)
	}

	if cfg.SkipBuild {
		o.logger().Info("Skipping build")
	} else {
		out, err := o.Builder.Run(ctx, cfg)
		rep.Build = &out
		if err != nil {
			return fail(Building, err)
		}
	}

	pub, err := withTimeoutErr(ctx, cfg.AWSTimeout, func(ctx context.Context) (s3site.PublishResult, error) {
		return o.Publisher.Publish(ctx, cfg, cfg.BucketName)
	})
	rep.Publish = &pub
	if err != nil {
		return fail(Publishing, err)
	}

	if cfg.CDN.Enabled() && o.Invalidator != nil {
		res, err := withTimeoutErr(ctx, cfg.AWSTimeout, func(ctx context.Context) (cdn.Result, error) {
			return o.Invalidator.Invalidate(ctx, cfg)
		})
		rep.CDN = &res
		if err != nil {
			return fail(Invalidating, err)
		}
	}

	rep.Stage = Done
	rep.Duration = time.Since(start)
	o.logger().Info("Deployment complete", "bucket", cfg.BucketName, "duration", rep.Duration)
	return rep, nil
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) T) T {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx)
}

func withTimeoutErr[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
