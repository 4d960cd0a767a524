package aws

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// S3 serves s3:// document URIs.
type S3 struct {
	cfg    aws.Config
	region string

	s3Client *s3.Client

	mu      sync.Mutex
	regions map[string]string
	clients map[string]*s3.Client
}

type Config struct {
	Region          string
	AssumeRoleARN   string
	ExternalID      string
	AccessKeyID     string
	SecretAccessKey string
}

func New(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	if cfg.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(awsCfg)
		creds := stscreds.NewAssumeRoleProvider(stsClient, cfg.AssumeRoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "foia-document-reader"
			if cfg.ExternalID != "" {
				o.ExternalID = aws.String(cfg.ExternalID)
			}
		})
		awsCfg.Credentials = aws.NewCredentialsCache(creds)
	}

	return &S3{
		cfg:      awsCfg,
		region:   cfg.Region,
		s3Client: s3.NewFromConfig(awsCfg),
		regions:  make(map[string]string),
		clients:  make(map[string]*s3.Client),
	}, nil
}

func (c *S3) Scheme() string { return "s3" }

func (c *S3) Close() error {
	return nil
}

func (c *S3) clientForRegion(region string) *s3.Client {
	if region == c.region || region == "" {
		return c.s3Client
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[region]; ok {
		return client
	}
	client := s3.NewFromConfig(c.cfg, func(o *s3.Options) {
		o.Region = region
	})
	c.clients[region] = client
	return client
}

// bucketRegion looks up and caches where a bucket lives. Buckets without a
// location constraint are in us-east-1.
func (c *S3) bucketRegion(ctx context.Context, bucket string) string {
	c.mu.Lock()
	region, ok := c.regions[bucket]
	c.mu.Unlock()
	if ok {
		return region
	}

	region = "us-east-1"
	out, err := c.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return c.region
	}
	if out.LocationConstraint != "" {
		region = string(out.LocationConstraint)
	}

	c.mu.Lock()
	c.regions[bucket] = region
	c.mu.Unlock()
	return region
}

func (c *S3) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	client := c.clientForRegion(c.bucketRegion(ctx, bucket))

	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}

	return output.Body, nil
}
