package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/assetpipe/assetctl/internal/config"
)

type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

func NewAzureBlobStorage(ctx context.Context, cfg *config.AzureBlobStorage) (*AzureBlobStorage, error) {
	var client *azblob.Client

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(*config.SecretAzure)
		if !ok {
			return nil, fmt.Errorf("secret %q is not an azure_auth secret", cfg.Credentials.Name)
		}

		cred, err := azblob.NewSharedKeyCredential(creds.AccountName, creds.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("invalid azure shared key: %w", err)
		}

		client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load azure credentials: %w", err)
		}

		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob client: %w", err)
		}
	}

	return &AzureBlobStorage{
		client:    client,
		container: cfg.Container,
		prefix:    cfg.Path,
	}, nil
}

func (s *AzureBlobStorage) Save(ctx context.Context, p string, content io.Reader) error {
	bs, err := readAll(p, content)
	if err != nil {
		return err
	}

	key := objectKey(s.prefix, p)
	sum := checksum(bs)
	ct := contentType(p)

	_, err = s.client.UploadBuffer(ctx, s.container, key, bs, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
		Metadata:    map[string]*string{"sha256": &sum},
	})
	if err != nil {
		return fmt.Errorf("upload azure %s/%s: %w", s.container, key, err)
	}

	return nil
}
