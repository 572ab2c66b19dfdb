package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/lstoll/site-deploy/internal/cdn"
	"github.com/lstoll/site-deploy/internal/deploy"
	"github.com/lstoll/site-deploy/internal/dockerbuild"
	"github.com/lstoll/site-deploy/internal/s3site"
	"github.com/lstoll/site-deploy/internal/siteconfig"
)

var (
	okMark      = color.New(color.FgGreen).Sprint("ok")
	failedMark  = color.New(color.FgRed, color.Bold).Sprint("failed")
	skippedMark = color.New(color.FgYellow).Sprint("skipped")
	notRunMark  = color.New(color.Faint).Sprint("not run")
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

// writeReport prints the outcome of a deployment. runErr is the error
// returned by the orchestrator, if any.
func writeReport(w io.Writer, rep deploy.Report, runErr error) {
	status := func(s deploy.Stage, ran bool) string {
		switch {
		case rep.Stage == s:
			return failedMark
		case rep.Stage != deploy.Done && s > rep.Stage:
			return notRunMark
		case !ran:
			return skippedMark
		default:
			return okMark
		}
	}

	t := newTable(w, "Stage", "Status", "Detail")
	t.Append([]string{deploy.EnsuringBucket.String(), status(deploy.EnsuringBucket, true), bucketDetail(rep.Bucket)})
	t.Append([]string{deploy.Building.String(), status(deploy.Building, rep.Build != nil), buildDetail(rep)})
	t.Append([]string{deploy.Publishing.String(), status(deploy.Publishing, rep.Publish != nil), publishDetail(rep.Publish)})
	t.Append([]string{deploy.Invalidating.String(), status(deploy.Invalidating, rep.CDN != nil && !rep.CDN.Skipped), cdnDetail(rep)})
	t.Render()

	var be *dockerbuild.BuildError
	if errors.As(runErr, &be) {
		fmt.Fprintf(w, "\nBuild output:\n%s\n", be.Output)
	} else if rep.Build != nil && rep.Build.Output != "" {
		fmt.Fprintf(w, "\nBuild output:\n%s\n", rep.Build.Output)
	}

	if rep.Publish != nil && len(rep.Publish.URLs) > 0 {
		fmt.Fprintln(w)
		dt := newTable(w, "Domains")
		for _, u := range rep.Publish.URLs {
			dt.Append([]string{u})
		}
		dt.Render()
	}

	if runErr != nil {
		fmt.Fprintf(w, "\n%s %v\n", color.New(color.FgRed).Sprint("Deployment failed:"), runErr)
		return
	}
	fmt.Fprintf(w, "\n%s in %s\n", color.New(color.FgGreen).Sprint("Deployment complete"), rep.Duration.Round(time.Millisecond))
}

func bucketDetail(r s3site.ProvisionResult) string {
	switch {
	case r.Bucket == "":
		return ""
	case r.Err != nil:
		return r.Bucket + ": " + r.Err.Error()
	case r.Created:
		return r.Bucket + " created"
	default:
		return r.Bucket + " exists"
	}
}

func buildDetail(rep deploy.Report) string {
	if rep.Build == nil {
		if rep.Config.SkipBuild {
			return "--no-build"
		}
		return ""
	}
	return fmt.Sprintf("%s, exit code %d", rep.Config.DockerImage, rep.Build.ExitCode)
}

func publishDetail(p *s3site.PublishResult) string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(p.Targets))
	for _, t := range p.Targets {
		parts = append(parts, fmt.Sprintf("%s: %d uploaded, %d unchanged, %d deleted", t.Postfix, t.Uploaded, t.Unchanged, t.Deleted))
	}
	return strings.Join(parts, "; ")
}

func cdnDetail(rep deploy.Report) string {
	if rep.CDN == nil {
		return cdn.SkipReason(rep.Config)
	}
	if rep.CDN.Skipped {
		return rep.CDN.Reason
	}
	return fmt.Sprintf("%s invalidation %s", rep.CDN.DistributionID, rep.CDN.InvalidationID)
}

// writePlan prints the deployment cfg describes.
func writePlan(w io.Writer, cfg siteconfig.Config) {
	t := newTable(w, "Setting", "Value")
	t.Append([]string{"App", cfg.App})
	t.Append([]string{"Branch", cfg.Branch})
	t.Append([]string{"Environment", cfg.Environment})
	t.Append([]string{"Build number", cfg.BuildNumber})
	t.Append([]string{"Bucket", fmt.Sprintf("%s (%s)", cfg.BucketName, cfg.Mode)})
	t.Append([]string{"Region", cfg.AWSRegion})
	t.Append([]string{"Credentials", cfg.AWSCredentials.String()})
	t.Append([]string{"Output directory", cfg.OutputDirectory})
	if cfg.SkipBuild {
		t.Append([]string{"Build", skippedMark})
	} else {
		t.Append([]string{"Build", "docker " + strings.Join(dockerbuild.RedactEnv(dockerbuild.Args(cfg, cfg.WorkDir)), " ")})
	}
	invalidation := cdn.SkipReason(cfg)
	if invalidation == "" {
		invalidation = cfg.CDN.DistributionID + " " + cdn.InvalidationPath
	}
	t.Append([]string{"Invalidation", invalidation})
	t.Render()

	fmt.Fprintln(w)
	dt := newTable(w, "Destination", "URL")
	for _, d := range cfg.Destinations {
		dt.Append([]string{d.Postfix, s3site.WebsiteURL(cfg.BucketName, cfg.AWSRegion, d.Postfix, cfg.IndexFile)})
	}
	dt.Render()
}
