// Package bundle resolves the member files of a configured bundle.
package bundle

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/assetpipe/assetctl/internal/config"
)

// Bundle is a read-only view over one bundle configuration. Its sources are
// resolved against the file system on first use and kept for the lifetime
// of the Bundle: later changes to the file system are not observed.
type Bundle struct {
	cfg         *config.Bundle
	fsys        fs.FS
	templateExt string

	once    sync.Once
	sources []string
	err     error
}

func New(cfg *config.Bundle, fsys fs.FS, templateExt string) *Bundle {
	if cfg == nil {
		cfg = &config.Bundle{}
	}
	return &Bundle{cfg: cfg, fsys: fsys, templateExt: templateExt}
}

func (b *Bundle) Name() string {
	return b.cfg.Name
}

// Sources returns the paths matched by the source patterns, in pattern
// order. Within a pattern, paths are sorted per directory level. A path
// matched by more than one pattern is kept at its first position only.
func (b *Bundle) Sources() ([]string, error) {
	b.once.Do(func() {
		b.sources, b.err = b.resolve()
	})
	return b.sources, b.err
}

func (b *Bundle) resolve() ([]string, error) {
	seen := make(map[string]struct{})
	sources := []string{}

	for _, pattern := range b.cfg.SourceFilenames {
		matches, err := doublestar.Glob(b.fsys, normalize(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bundle %q: pattern %q: %w", b.cfg.Name, pattern, err)
		}

		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			sources = append(sources, m)
		}
	}

	return sources, nil
}

// normalize strips leading "/" and "./", which fs.FS paths never carry.
func normalize(pattern string) string {
	for {
		switch {
		case strings.HasPrefix(pattern, "/"):
			pattern = pattern[1:]
		case strings.HasPrefix(pattern, "./"):
			pattern = pattern[2:]
		default:
			return pattern
		}
	}
}

// Paths returns the sources that are not templates.
func (b *Bundle) Paths() ([]string, error) {
	return b.split(false)
}

// Templates returns the sources ending in the template extension.
func (b *Bundle) Templates() ([]string, error) {
	return b.split(true)
}

func (b *Bundle) split(templates bool) ([]string, error) {
	sources, err := b.Sources()
	if err != nil {
		return nil, err
	}

	out := []string{}
	for _, s := range sources {
		if b.isTemplate(s) == templates {
			out = append(out, s)
		}
	}
	return out, nil
}

func (b *Bundle) isTemplate(path string) bool {
	return b.templateExt != "" && strings.HasSuffix(path, b.templateExt)
}

func (b *Bundle) OutputFilename() string {
	return b.cfg.OutputFilename
}

// ExtraContext is never nil.
func (b *Bundle) ExtraContext() map[string]any {
	if b.cfg.ExtraContext == nil {
		return map[string]any{}
	}
	return b.cfg.ExtraContext
}

func (b *Bundle) TemplateName() string {
	return b.cfg.TemplateName
}

// Variant returns the compressor variant, or "" when none is configured.
func (b *Bundle) Variant() string {
	if b.cfg.Variant == nil {
		return ""
	}
	return *b.cfg.Variant
}

// Manifest reports whether the bundle is recorded in the build manifest.
// Defaults to true.
func (b *Bundle) Manifest() bool {
	return b.cfg.Manifest == nil || *b.cfg.Manifest
}

// AbsolutePaths reports whether asset references are rewritten to absolute
// URLs. Defaults to true.
func (b *Bundle) AbsolutePaths() bool {
	return b.cfg.AbsolutePaths == nil || *b.cfg.AbsolutePaths
}
