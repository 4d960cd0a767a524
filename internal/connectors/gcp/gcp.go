package gcp

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS serves gs:// document URIs.
type GCS struct {
	projectID     string
	storageClient *storage.Client
}

type Config struct {
	ProjectID       string
	CredentialsFile string
}

func New(ctx context.Context, cfg Config) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return &GCS{
		projectID:     cfg.ProjectID,
		storageClient: storageClient,
	}, nil
}

func (c *GCS) Scheme() string { return "gs" }

func (c *GCS) Close() error {
	if c.storageClient != nil {
		return c.storageClient.Close()
	}
	return nil
}

func (c *GCS) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	reader, err := c.storageClient.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting gs://%s/%s: %w", bucket, key, err)
	}
	return reader, nil
}
