package s3site

import (
	"fmt"
	"strings"
)

// Regions whose website endpoint uses a dash before the region name.
var dashWebsiteRegions = map[string]bool{
	"us-east-1":      true,
	"us-west-1":      true,
	"us-west-2":      true,
	"us-gov-west-1":  true,
	"eu-west-1":      true,
	"ap-southeast-1": true,
	"ap-southeast-2": true,
	"ap-northeast-1": true,
	"sa-east-1":      true,
}

// WebsiteEndpoint returns the S3 static website host suffix for region.
func WebsiteEndpoint(region string) string {
	if dashWebsiteRegions[region] {
		return "s3-website-" + region + ".amazonaws.com"
	}
	return "s3-website." + region + ".amazonaws.com"
}

// WebsiteURL returns the public URL of the index document under postfix.
func WebsiteURL(bucket, region, postfix, indexFile string) string {
	if !strings.HasPrefix(postfix, "/") {
		postfix = "/" + postfix
	}
	if !strings.HasSuffix(postfix, "/") {
		postfix += "/"
	}
	return fmt.Sprintf("http://%s.%s%s%s", bucket, WebsiteEndpoint(region), postfix, indexFile)
}
