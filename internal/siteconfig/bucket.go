package siteconfig

import (
	"regexp"
	"strings"
)

const maxBucketNameLen = 63

var invalidBucketChars = regexp.MustCompile(`[^a-z0-9-]+`)

// IsolatedBucketName derives a dedicated bucket name for one
// app/branch/environment. The result follows S3 bucket naming rules.
func IsolatedBucketName(prefix, app, branch, environment string) string {
	if prefix == "" {
		prefix = DefaultBucketPrefix
	}
	raw := strings.ToLower(strings.Join([]string{prefix, app, branch, environment}, "-"))
	name := invalidBucketChars.ReplaceAllString(raw, "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	name = strings.Trim(name, "-")
	if len(name) > maxBucketNameLen {
		name = strings.TrimRight(name[:maxBucketNameLen], "-")
	}
	return name
}

// SharedDestinations returns the paths an app publishes to inside a shared
// bucket: the live path and, with a build number, an archive of that build.
func SharedDestinations(app, branch, environment, build string) []Destination {
	live := NormalizePostfix(strings.Join([]string{environment, app, branch}, "/"))
	dests := []Destination{{Postfix: live, PreserveArchives: true}}
	if build != "" {
		dests = append(dests, Destination{Postfix: NormalizePostfix(live + build), Archive: true})
	}
	return dests
}

// ParsePostfixes splits a comma separated postfix list. An empty list
// yields the bucket root.
func ParsePostfixes(s string) []Destination {
	var dests []Destination
	seen := make(map[string]bool)
	for _, p := range strings.Split(s, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		n := NormalizePostfix(p)
		if seen[n] {
			continue
		}
		seen[n] = true
		dests = append(dests, Destination{Postfix: n})
	}
	if len(dests) == 0 {
		dests = []Destination{{Postfix: "/"}}
	}
	return dests
}

// NormalizePostfix returns p with exactly one leading and trailing slash and
// no empty segments.
func NormalizePostfix(p string) string {
	var segs []string
	for _, s := range strings.Split(strings.TrimSpace(p), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/") + "/"
}

// deriveBucket picks the bucket and destinations when none was given
// explicitly. It depends only on its arguments.
func deriveBucket(app, branch, environment, build, sharedRoot, prefix string) (string, BucketMode, []Destination) {
	if sharedRoot != "" {
		return sharedRoot, ModeShared, SharedDestinations(app, branch, environment, build)
	}
	return IsolatedBucketName(prefix, app, branch, environment), ModeIsolated, []Destination{{Postfix: "/"}}
}
