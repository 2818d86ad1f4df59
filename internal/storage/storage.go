// Package storage persists built artifacts to a local directory or an
// object store. Every backend addresses artifacts by slash-separated path and
// replaces existing content.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/assetpipe/assetctl/internal/config"
)

type Storage interface {
	Save(ctx context.Context, path string, content io.Reader) error
}

func New(ctx context.Context, cfg config.ObjectStorage) (Storage, error) {
	var (
		s   Storage
		err error
	)

	switch {
	case cfg.AmazonS3 != nil:
		s, err = NewAmazonS3(ctx, cfg.AmazonS3)
	case cfg.GCPCloudStorage != nil:
		s, err = NewGCPCloudStorage(ctx, cfg.GCPCloudStorage)
	case cfg.AzureBlobStorage != nil:
		s, err = NewAzureBlobStorage(ctx, cfg.AzureBlobStorage)
	case cfg.FileSystemStorage != nil:
		s = NewFileSystem(cfg.FileSystemStorage.Path)
	default:
		return nil, errors.New("no storage backend configured")
	}
	if err != nil {
		return nil, err
	}

	if len(cfg.Precompress) > 0 {
		s = NewPrecompressed(s, cfg.Precompress...)
	}

	return s, nil
}

// objectKey joins the configured prefix and the artifact path.
func objectKey(prefix, p string) string {
	p = strings.TrimLeft(p, "/")
	if prefix == "" {
		return p
	}
	return path.Join(prefix, p)
}

func contentType(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func checksum(bs []byte) string {
	sum := sha256.Sum256(bs)
	return hex.EncodeToString(sum[:])
}

func readAll(p string, content io.Reader) ([]byte, error) {
	bs, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content of %s: %w", p, err)
	}
	return bs, nil
}
