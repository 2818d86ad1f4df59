// Package httpsync downloads the remote files of a configuration into the
// remote directory, where they are picked up as sources.
package httpsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/assetpipe/assetctl/internal/config"
	"github.com/assetpipe/assetctl/internal/logging"
)

const maxConcurrentDownloads = 4

// HttpFileSynchronizer downloads one file. The previous copy is only
// replaced once the download has completed.
type HttpFileSynchronizer struct {
	path        string // The path where the file will be saved
	url         string
	headers     map[string]string
	credentials *config.SecretRef
	client      *http.Client
}

type HeaderSetter interface {
	SetHeader(*http.Request) error
}

func New(path string, url string, headers map[string]string, credentials *config.SecretRef) *HttpFileSynchronizer {
	return &HttpFileSynchronizer{path: path, url: url, headers: headers, credentials: credentials, client: http.DefaultClient}
}

func (s *HttpFileSynchronizer) WithClient(c *http.Client) *HttpFileSynchronizer {
	s.client = c
	return s
}

func (s *HttpFileSynchronizer) Execute(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	s.setHeaders(req)

	if err := s.authenticate(ctx, req); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unsuccessful status code %d", resp.StatusCode)
	}

	return s.write(resp.Body)
}

func (s *HttpFileSynchronizer) write(r io.Reader) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return err
	}

	return os.Rename(f.Name(), s.path)
}

func (s *HttpFileSynchronizer) authenticate(ctx context.Context, req *http.Request) error {
	if s.credentials == nil {
		return nil
	}

	secret, err := s.credentials.Resolve(ctx)
	if err != nil {
		return err
	}

	if secret, ok := secret.(HeaderSetter); ok {
		return secret.SetHeader(req)
	}
	return fmt.Errorf("unsupported secret type for http sync: %T", secret)
}

func (s *HttpFileSynchronizer) setHeaders(req *http.Request) {
	for name, value := range s.headers {
		if value != "" {
			req.Header.Set(name, value)
		}
	}
}

// Sync downloads every remote file of cfg below its remote directory. All
// downloads are attempted; the first failure is returned.
func Sync(ctx context.Context, cfg *config.Root, log *logging.Logger) error {
	if len(cfg.RemoteFiles) == 0 {
		return nil
	}

	dir := cfg.RemoteDirectory()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(maxConcurrentDownloads)

	for _, f := range cfg.SortedRemoteFiles() {
		s := New(filepath.Join(dir, filepath.FromSlash(f.Path)), f.URL, f.Headers, f.Credentials)
		g.Go(func() error {
			if err := s.Execute(ctx); err != nil {
				log.Warnf("failed to download remote file %s: %v", f.Path, err)
				return fmt.Errorf("remote file %q: %w", f.Path, err)
			}
			log.Debugf("Downloaded %s to %s", f.URL, f.Path)
			return nil
		})
	}

	return g.Wait()
}
