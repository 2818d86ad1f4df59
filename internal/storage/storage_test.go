package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"github.com/assetpipe/assetctl/internal/config"
)

func TestFileSystem(t *testing.T) {
	root := t.TempDir()
	fs := NewFileSystem(root)
	ctx := context.Background()

	for _, content := range []string{"first", "second"} {
		if err := fs.Save(ctx, "build/css/app.css", strings.NewReader(content)); err != nil {
			t.Fatal(err)
		}
	}

	bs, err := os.ReadFile(filepath.Join(root, "build", "css", "app.css"))
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != "second" {
		t.Fatalf("expected overwrite, got %q", bs)
	}

	entries, err := os.ReadDir(filepath.Join(root, "build", "css"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temporary files to be gone, got %v", entries)
	}
}

func TestFileSystemInvalidPath(t *testing.T) {
	fs := NewFileSystem(t.TempDir())

	for _, p := range []string{"../escape.css", "/abs.css", ""} {
		t.Run(p, func(t *testing.T) {
			if err := fs.Save(context.Background(), p, strings.NewReader("x")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type failingStorage struct{ err error }

func (f failingStorage) Save(context.Context, string, io.Reader) error { return f.err }

func TestPrecompressed(t *testing.T) {
	root := t.TempDir()
	content := strings.Repeat("body { color: red; }\n", 100)

	s, err := New(context.Background(), config.ObjectStorage{
		FileSystemStorage: &config.FileSystemStorage{Path: root},
		Precompress:       config.StringSet{config.PrecompressGzip, config.PrecompressBrotli},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Save(context.Background(), "app.css", strings.NewReader(content)); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		note   string
		file   string
		reader func(io.Reader) (io.Reader, error)
	}{
		{
			note:   "plain",
			file:   "app.css",
			reader: func(r io.Reader) (io.Reader, error) { return r, nil },
		},
		{
			note: "gzip",
			file: "app.css.gz",
			reader: func(r io.Reader) (io.Reader, error) {
				return gzip.NewReader(r)
			},
		},
		{
			note:   "brotli",
			file:   "app.css.br",
			reader: func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil },
		},
	} {
		t.Run(tc.note, func(t *testing.T) {
			bs, err := os.ReadFile(filepath.Join(root, tc.file))
			if err != nil {
				t.Fatal(err)
			}

			r, err := tc.reader(bytes.NewReader(bs))
			if err != nil {
				t.Fatal(err)
			}

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(content, string(got)); diff != "" {
				t.Fatalf("unexpected content (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPrecompressedPropagatesErrors(t *testing.T) {
	errSave := errors.New("save failed")
	s := NewPrecompressed(failingStorage{err: errSave}, config.PrecompressGzip)

	if err := s.Save(context.Background(), "app.js", strings.NewReader("x")); !errors.Is(err, errSave) {
		t.Fatalf("expected %v, got %v", errSave, err)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		note   string
		cfg    config.ObjectStorage
		secret *config.Secret
		check  func(Storage) bool
		err    string
	}{
		{
			note: "none",
			err:  "no storage backend configured",
		},
		{
			note:  "filesystem",
			cfg:   config.ObjectStorage{FileSystemStorage: &config.FileSystemStorage{Path: "dist"}},
			check: func(s Storage) bool { _, ok := s.(*FileSystem); return ok },
		},
		{
			note: "azure shared key",
			cfg: config.ObjectStorage{AzureBlobStorage: &config.AzureBlobStorage{
				AccountURL: "https://account.blob.core.windows.net/",
				Container:  "assets",
			}},
			secret: &config.Secret{Name: "azure", Value: map[string]any{
				"type":         "azure_auth",
				"account_name": "account",
				"account_key":  "a2V5",
			}},
			check: func(s Storage) bool { _, ok := s.(*AzureBlobStorage); return ok },
		},
		{
			note: "gcp api key",
			cfg:  config.ObjectStorage{GCPCloudStorage: &config.GCPCloudStorage{Project: "p", Bucket: "b"}},
			secret: &config.Secret{Name: "gcp", Value: map[string]any{
				"type":    "gcp_auth",
				"api_key": "key",
			}},
			check: func(s Storage) bool { _, ok := s.(*GCPCloudStorage); return ok },
		},
		{
			note: "wrong secret type",
			cfg: config.ObjectStorage{AzureBlobStorage: &config.AzureBlobStorage{
				AccountURL: "https://account.blob.core.windows.net/",
				Container:  "assets",
			}},
			secret: &config.Secret{Name: "aws", Value: map[string]any{
				"type":              "aws_auth",
				"access_key_id":     "id",
				"secret_access_key": "secret",
			}},
			err: `secret "aws" is not an azure_auth secret`,
		},
	} {
		t.Run(tc.note, func(t *testing.T) {
			if tc.secret != nil {
				ref := tc.secret.Ref()
				switch {
				case tc.cfg.AzureBlobStorage != nil:
					tc.cfg.AzureBlobStorage.Credentials = ref
				case tc.cfg.GCPCloudStorage != nil:
					tc.cfg.GCPCloudStorage.Credentials = ref
				}
			}

			s, err := New(ctx, tc.cfg)
			if tc.err != "" {
				if err == nil || err.Error() != tc.err {
					t.Fatalf("expected error %q, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !tc.check(s) {
				t.Fatalf("unexpected storage %T", s)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	for _, tc := range []struct {
		prefix, path, exp string
	}{
		{"", "build/app.css", "build/app.css"},
		{"", "/build/app.css", "build/app.css"},
		{"assets", "build/app.css", "assets/build/app.css"},
		{"assets/", "/app.css", "assets/app.css"},
	} {
		if got := objectKey(tc.prefix, tc.path); got != tc.exp {
			t.Errorf("objectKey(%q, %q): expected %q, got %q", tc.prefix, tc.path, tc.exp, got)
		}
	}
}
