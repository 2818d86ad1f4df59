// Package compressor concatenates compiled files into one stylesheet or
// script, rewriting asset references and compiling client side templates on
// the way.
package compressor

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	"github.com/assetpipe/assetctl/internal/config"
)

const (
	mediaTypeCSS = "text/css"
	mediaTypeJS  = "application/javascript"

	VariantDataURI = "datauri"
)

// URLFunc returns the URL a single source file is served at.
type URLFunc func(path string) string

type Compressor struct {
	opts      config.Compressor
	fsys      fs.FS
	urlFor    URLFunc
	embedPath *regexp.Regexp
	minifier  *minify.M
}

// New returns a compressor reading files from fsys. The options are expected
// to have defaults applied (see config.Root.CompressorOptions).
func New(opts config.Compressor, fsys fs.FS, urlFor URLFunc) (*Compressor, error) {
	embedPath, err := regexp.Compile(opts.EmbedPath)
	if err != nil {
		return nil, fmt.Errorf("invalid embed_path %q: %w", opts.EmbedPath, err)
	}

	m := minify.New()
	m.AddFunc(mediaTypeCSS, css.Minify)
	m.AddFunc(mediaTypeJS, js.Minify)

	return &Compressor{
		opts:      opts,
		fsys:      fsys,
		urlFor:    urlFor,
		embedPath: embedPath,
		minifier:  m,
	}, nil
}

func (c *Compressor) concatenate(ctx context.Context, paths []string, sep string, transform func(path string, content []byte) ([]byte, error)) ([]byte, error) {
	var buf bytes.Buffer
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := fs.ReadFile(c.fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}

		if transform != nil {
			content, err = transform(p, content)
			if err != nil {
				return nil, err
			}
		}

		if i > 0 {
			buf.WriteString(sep)
		}
		buf.Write(content)
	}
	return buf.Bytes(), nil
}

func (c *Compressor) minify(mediaType, mode string, content []byte) ([]byte, error) {
	if mode == config.CompressNone {
		return content, nil
	}

	out, err := c.minifier.Bytes(mediaType, content)
	if err != nil {
		return nil, fmt.Errorf("minify %s: %w", mediaType, err)
	}
	return out, nil
}
