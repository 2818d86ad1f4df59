package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/assetpipe/assetctl/internal/config"
)

type GCPCloudStorage struct {
	bucket *gcs.BucketHandle
	name   string
	prefix string
}

// NewGCPCloudStorage bills requests to the configured project unless an API
// key is used, which already identifies its project.
func NewGCPCloudStorage(ctx context.Context, cfg *config.GCPCloudStorage) (*GCPCloudStorage, error) {
	var (
		opts   []option.ClientOption
		apiKey bool
	)

	if cfg.Credentials != nil {
		value, err := cfg.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(*config.SecretGCP)
		if !ok {
			return nil, fmt.Errorf("secret %q is not a gcp_auth secret", cfg.Credentials.Name)
		}

		if creds.APIKey != "" {
			apiKey = true
			opts = append(opts, option.WithAPIKey(creds.APIKey))
		} else {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds.Credentials)))
		}
	}

	if !apiKey && cfg.Project != "" {
		opts = append(opts, option.WithQuotaProject(cfg.Project))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCPCloudStorage{
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
		prefix: cfg.Object,
	}, nil
}

func (s *GCPCloudStorage) Save(ctx context.Context, p string, content io.Reader) error {
	bs, err := readAll(p, content)
	if err != nil {
		return err
	}

	key := objectKey(s.prefix, p)
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType(p)
	w.Metadata = map[string]string{"sha256": checksum(bs)}

	if _, err := w.Write(bs); err != nil {
		w.Close()
		return fmt.Errorf("upload gs://%s/%s: %w", s.name, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload gs://%s/%s: %w", s.name, key, err)
	}

	return nil
}
