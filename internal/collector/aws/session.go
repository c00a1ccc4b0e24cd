// Package aws implements the Lambda, S3 and EC2 inventory collectors.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/kirja/internal/collector"
	"github.com/yairfalse/kirja/internal/filter"
)

// Config holds AWS session settings.
type Config struct {
	Region  string
	Profile string

	// Endpoint overrides every service endpoint, for LocalStack. Static
	// test credentials and path-style S3 addressing are used with it.
	Endpoint string
}

// LoadConfig resolves an aws.Config through the default credential chain.
func LoadConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts,
			config.WithBaseEndpoint(cfg.Endpoint),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// Options are shared by all collectors.
type Options struct {
	// Filter is applied to every listed resource. Nil includes everything
	// (the instance collector still requires its own tags).
	Filter *filter.Filter

	// Now stamps the report. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Session holds the service clients of one invocation.
type Session struct {
	region string

	lambdaClient *lambda.Client
	s3Client     *s3.Client
	ec2Client    *ec2.Client
}

// NewSession loads the AWS configuration and builds every client from it.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	awsCfg, err := LoadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Session{
		region:       awsCfg.Region,
		lambdaClient: lambda.NewFromConfig(awsCfg),
		s3Client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.Endpoint != ""
		}),
		ec2Client: ec2.NewFromConfig(awsCfg),
	}, nil
}

// Region returns the resolved default region.
func (s *Session) Region() string {
	return s.region
}

// S3 returns the session's S3 client, shared with the publisher.
func (s *Session) S3() *s3.Client {
	return s.s3Client
}

// Collectors returns a registry with one collector per kind, all bound to
// this session.
func (s *Session) Collectors(opts Options) *collector.Registry {
	return collector.NewRegistry(
		NewFunctionCollector(s.lambdaClient, opts),
		NewBucketCollector(s.s3Client, opts),
		NewInstanceCollector(s.ec2Client, opts),
	)
}
