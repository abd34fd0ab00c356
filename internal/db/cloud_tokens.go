package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// rdsTokenLifetime is the validity of an RDS IAM auth token.
const rdsTokenLifetime = 15 * time.Minute

// rdsTokenProvider signs RDS IAM auth tokens. The AWS credential chain is
// resolved once and reused for every pool reconnect.
type rdsTokenProvider struct {
	endpoint string
	region   string
	user     string

	once  sync.Once
	creds aws.CredentialsProvider
	err   error
}

// newRDSTokenProvider reports every missing setting at once.
func newRDSTokenProvider(cfg *fanload.ConnectionConfig) (*rdsTokenProvider, error) {
	var errs []error
	if cfg.Host == "" || cfg.Port == 0 {
		errs = append(errs, errors.New("AWS IAM auth requires host and port"))
	}
	if cfg.AWSRegion == "" {
		errs = append(errs, errors.New("AWS IAM auth requires a region (--aws-region or $AWS_REGION)"))
	}
	if cfg.Username == "" {
		errs = append(errs, errors.New("AWS IAM auth requires a database user (-U)"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", err, fanload.ErrInvalidConfig)
	}
	return &rdsTokenProvider{
		endpoint: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		region:   cfg.AWSRegion,
		user:     cfg.Username,
	}, nil
}

func (p *rdsTokenProvider) credentials(ctx context.Context) (aws.CredentialsProvider, error) {
	p.once.Do(func() {
		c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
		if err != nil {
			p.err = fmt.Errorf("load AWS config: %w", err)
			return
		}
		p.creds = c.Credentials
	})
	return p.creds, p.err
}

func (p *rdsTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	creds, err := p.credentials(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	issued := time.Now()
	token, err := auth.BuildAuthToken(ctx, p.endpoint, p.region, p.user, creds)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign RDS auth token for %s: %w", p.user, err)
	}
	return token, issued.Add(rdsTokenLifetime), nil
}

func (p *rdsTokenProvider) String() string {
	return fmt.Sprintf("rds-iam %s@%s (%s)", p.user, p.endpoint, p.region)
}

// entraTokenProvider requests Entra ID tokens scoped to Azure Database for PostgreSQL.
type entraTokenProvider struct {
	cred azcore.TokenCredential
	desc string
}

// newEntraTokenProvider uses a service principal when tenant, client and secret
// are all set, and the DefaultAzureCredential chain otherwise.
func newEntraTokenProvider(cfg *fanload.ConnectionConfig) (*entraTokenProvider, error) {
	if cfg.AzureTenantID != "" && cfg.AzureClientID != "" && cfg.AzureClientSecret != "" {
		cred, err := azidentity.NewClientSecretCredential(cfg.AzureTenantID, cfg.AzureClientID, cfg.AzureClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("azure service principal: %w", err)
		}
		return &entraTokenProvider{
			cred: cred,
			desc: fmt.Sprintf("entra service principal %s (tenant %s)", cfg.AzureClientID, cfg.AzureTenantID),
		}, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure default credential: %w", err)
	}
	return &entraTokenProvider{cred: cred, desc: "entra default credential chain"}, nil
}

func (p *entraTokenProvider) GetToken(ctx context.Context) (string, time.Time, error) {
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{AzurePostgreSQLScope}})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("acquire entra token: %w", err)
	}
	return tok.Token, tok.ExpiresOn, nil
}

func (p *entraTokenProvider) String() string { return p.desc }
