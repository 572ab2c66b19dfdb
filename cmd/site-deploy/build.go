package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lstoll/site-deploy/internal/cdn"
	"github.com/lstoll/site-deploy/internal/deploy"
	"github.com/lstoll/site-deploy/internal/dockerbuild"
	"github.com/lstoll/site-deploy/internal/s3site"
)

func runBuild(ctx context.Context, logger *slog.Logger, stdout io.Writer, args, environ []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stdout)
	opts := addDeployFlags(fs)
	if err := opts.parse(fs, args, environ); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		logger.Error("Invalid flags", "error", err)
		return exitUsage
	}

	cfg, err := opts.resolve(environ)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		fmt.Fprintln(stdout, err)
		return exitFailure
	}
	logger.Debug("Resolved configuration", "bucket", cfg.BucketName, "mode", string(cfg.Mode), "credentials", cfg.AWSCredentials.String())

	awsCfg, err := opts.auth.Load(ctx, cfg.AWSRegion, cfg.AWSCredentials)
	if err != nil {
		logger.Error("Failed to load AWS config", "error", err)
		return exitFailure
	}
	s3Client := s3.NewFromConfig(awsCfg)

	orch := &deploy.Orchestrator{
		Provisioner: &s3site.Provisioner{Client: s3Client, Logger: logger},
		Builder:     &dockerbuild.Executor{Runner: dockerbuild.ExecRunner{}, Logger: logger},
		Publisher:   s3site.NewPublisher(s3Client, logger),
		Logger:      logger,
	}
	if cfg.CDN.Enabled() {
		cdnCfg, err := opts.auth.LoadCDN(ctx, cfg, awsCfg)
		if err != nil {
			logger.Error("Failed to load CloudFront config", "error", err)
			return exitFailure
		}
		orch.Invalidator = &cdn.Invalidator{Client: cloudfront.NewFromConfig(cdnCfg), Logger: logger}
	}

	rep, err := orch.Run(ctx, cfg)
	writeReport(stdout, rep, err)
	if err != nil {
		return exitFailure
	}
	return exitOK
}
