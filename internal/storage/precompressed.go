package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/assetpipe/assetctl/internal/config"
)

// Precompressed saves, next to every artifact, a copy per configured
// encoding so static file servers can serve them without compressing on the
// fly: "gzip" writes path.gz, "br" writes path.br.
type Precompressed struct {
	Storage
	encodings []string
}

func NewPrecompressed(s Storage, encodings ...string) *Precompressed {
	return &Precompressed{Storage: s, encodings: encodings}
}

func (p *Precompressed) Save(ctx context.Context, path string, content io.Reader) error {
	bs, err := readAll(path, content)
	if err != nil {
		return err
	}

	if err := p.Storage.Save(ctx, path, bytes.NewReader(bs)); err != nil {
		return err
	}

	for _, enc := range p.encodings {
		compressed, ext, err := compress(enc, bs)
		if err != nil {
			return fmt.Errorf("precompress %s: %w", path, err)
		}
		if err := p.Storage.Save(ctx, path+ext, bytes.NewReader(compressed)); err != nil {
			return err
		}
	}

	return nil
}

func compress(enc string, bs []byte) ([]byte, string, error) {
	var (
		buf bytes.Buffer
		w   io.WriteCloser
		ext string
	)

	switch enc {
	case config.PrecompressGzip:
		gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, "", err
		}
		w, ext = gw, ".gz"
	case config.PrecompressBrotli:
		w, ext = brotli.NewWriterLevel(&buf, brotli.BestCompression), ".br"
	default:
		return nil, "", fmt.Errorf("unknown encoding %q", enc)
	}

	if _, err := w.Write(bs); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), ext, nil
}
