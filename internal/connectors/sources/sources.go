// Package sources builds the connector registry from configuration.
package sources

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/govworks/foia/internal/config"
	"github.com/govworks/foia/internal/connectors"
	awsconn "github.com/govworks/foia/internal/connectors/aws"
	azureconn "github.com/govworks/foia/internal/connectors/azure"
	gcpconn "github.com/govworks/foia/internal/connectors/gcp"
)

// Build registers every storage provider cfg enables. A provider that
// fails to initialize is skipped with a warning so the others stay usable.
func Build(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) *connectors.Registry {
	if logger == nil {
		logger = slog.Default()
	}
	reg := connectors.NewRegistry(cfg.MaxBytes)

	if cfg.LocalRoot != "" {
		reg.Register(&connectors.FileSource{Root: cfg.LocalRoot})
	}

	if cfg.AWS.Region != "" {
		src, err := awsconn.New(ctx, awsconn.Config{
			Region:          cfg.AWS.Region,
			AssumeRoleARN:   cfg.AWS.AssumeRoleARN,
			ExternalID:      cfg.AWS.ExternalID,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		})
		register(reg, logger, "s3", src, err)
	}

	if cfg.GCP.ProjectID != "" || cfg.GCP.CredentialsFile != "" {
		src, err := gcpconn.New(ctx, gcpconn.Config{
			ProjectID:       cfg.GCP.ProjectID,
			CredentialsFile: cfg.GCP.CredentialsFile,
		})
		register(reg, logger, "gs", src, err)
	}

	if cfg.Azure.StorageAccount != "" {
		src, err := azureconn.New(ctx, azureconn.Config{
			TenantID:       cfg.Azure.TenantID,
			ClientID:       cfg.Azure.ClientID,
			ClientSecret:   cfg.Azure.ClientSecret,
			StorageAccount: cfg.Azure.StorageAccount,
		})
		register(reg, logger, "azblob", src, err)
	}

	logger.Info("document sources ready", "schemes", fmt.Sprint(reg.Schemes()))
	return reg
}

func register[S connectors.Source](reg *connectors.Registry, logger *slog.Logger, scheme string, src S, err error) {
	if err != nil {
		logger.Warn("storage source disabled", "scheme", scheme, "error", err)
		return
	}
	reg.Register(src)
}
