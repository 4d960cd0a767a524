package azure

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Blob serves azblob://container/blob URIs from one storage account.
type Blob struct {
	account string
	client  *azblob.Client
}

type Config struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	StorageAccount string
}

func New(ctx context.Context, cfg Config) (*Blob, error) {
	if cfg.StorageAccount == "" {
		return nil, fmt.Errorf("azure storage account is required")
	}

	var (
		credential azcore.TokenCredential
		err        error
	)
	if cfg.ClientSecret != "" {
		credential, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	} else {
		credential, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("creating credential: %w", err)
	}

	url := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.StorageAccount)
	client, err := azblob.NewClient(url, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}

	return &Blob{account: cfg.StorageAccount, client: client}, nil
}

func (c *Blob) Scheme() string { return "azblob" }

func (c *Blob) Close() error {
	return nil
}

func (c *Blob) Open(ctx context.Context, container, blob string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %s/%s/%s: %w", c.account, container, blob, err)
	}
	return resp.Body, nil
}
