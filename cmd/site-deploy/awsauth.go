package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/oauth2"
	"lds.li/oauth2ext/clitoken"
	"lds.li/oauth2ext/oidc"
	"lds.li/oauth2ext/provider"

	"github.com/lstoll/site-deploy/internal/siteconfig"
)

// awsAuthConfig holds the OIDC client used when the deployment assumes a
// role through web identity instead of using a static key pair.
type awsAuthConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
}

func addAWSAuthFlags(fs *flag.FlagSet) *awsAuthConfig {
	c := &awsAuthConfig{}
	fs.StringVar(&c.Issuer, "oidc-issuer", "", "OIDC issuer URL, overrides aws.oidcIssuer from the settings file")
	fs.StringVar(&c.ClientID, "oidc-client-id", "sts.amazonaws.com", "OIDC client ID")
	fs.StringVar(&c.ClientSecret, "oidc-client-secret", "public", "OIDC client secret")
	return c
}

var errNoCredentials = errors.New("no AWS credentials configured")

// Load returns an aws.Config for region using creds. A key pair is used as
// static credentials, otherwise the role is assumed with an ID token from
// the OIDC issuer.
func (c *awsAuthConfig) Load(ctx context.Context, region string, creds siteconfig.Credentials) (aws.Config, error) {
	if creds.HasKeyPair() {
		return config.LoadDefaultConfig(ctx,
			config.WithRegion(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")),
		)
	}
	if creds.RoleARN == "" {
		return aws.Config{}, errNoCredentials
	}

	issuer := c.Issuer
	if issuer == "" {
		issuer = creds.OIDCIssuer
	}
	if issuer == "" {
		return aws.Config{}, fmt.Errorf("role %s needs an OIDC issuer", creds.RoleARN)
	}

	prov, err := provider.DiscoverOIDCProvider(ctx, issuer)
	if err != nil {
		return aws.Config{}, fmt.Errorf("discovering issuer %s: %w", issuer, err)
	}

	tokCfg := clitoken.Config{
		OAuth2Config: oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     prov.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID},
		},
	}
	ts, err := tokCfg.TokenSource(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("getting cli token source: %w", err)
	}

	// STS is called anonymously, the web identity token is the credential.
	baseCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}

	roleCreds := stscreds.NewWebIdentityRoleProvider(
		sts.NewFromConfig(baseCfg),
		creds.RoleARN,
		identityTokenSource{ts},
		func(o *stscreds.WebIdentityRoleOptions) {
			o.RoleSessionName = "site-deploy"
		},
	)

	return config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.NewCredentialsCache(roleCreds)),
	)
}

// LoadCDN returns the config for the CloudFront client. CloudFront gets its
// own key pair when one is configured and shares the deployment
// credentials otherwise.
func (c *awsAuthConfig) LoadCDN(ctx context.Context, cfg siteconfig.Config, base aws.Config) (aws.Config, error) {
	if cfg.CDN.Credentials.HasKeyPair() {
		return c.Load(ctx, cfg.CDN.Region, cfg.CDN.Credentials)
	}
	cdnCfg := base.Copy()
	cdnCfg.Region = cfg.CDN.Region
	return cdnCfg, nil
}

type identityTokenSource struct {
	oauth2.TokenSource
}

func (its identityTokenSource) GetIdentityToken() ([]byte, error) {
	tok, err := its.Token()
	if err != nil {
		return nil, err
	}
	idToken, ok := oidc.GetIDToken(tok)
	if !ok {
		return nil, fmt.Errorf("response has no id_token")
	}
	return []byte(idToken), nil
}
