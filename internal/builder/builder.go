// Package builder owns the configured bundles and drives the build of one
// bundle: compile its files, compress them into one artifact, save the
// artifact and announce it.
package builder

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/assetpipe/assetctl/internal/bundle"
	"github.com/assetpipe/assetctl/internal/config"
	"github.com/assetpipe/assetctl/internal/logging"
	"github.com/assetpipe/assetctl/internal/notify"
)

type Kind string

const (
	KindCSS Kind = "css"
	KindJS  Kind = "js"
)

var Kinds = []Kind{KindCSS, KindJS}

func ParseKind(s string) (Kind, error) {
	if k := Kind(s); slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown bundle kind %q", s)
}

// Compiler turns one source file into a file the compressor can consume and
// returns its path. Files it has no compiler for are returned unchanged.
type Compiler interface {
	Compile(ctx context.Context, path string) (string, error)
}

type Compressor interface {
	CompressCSS(ctx context.Context, paths []string, assetURL string, variant string, absolutePaths bool) ([]byte, error)
	CompressJS(ctx context.Context, paths []string, assetURL string, templates []string) ([]byte, error)
	CompileTemplates(ctx context.Context, paths []string) (string, error)
}

// Storage persists artifacts by path, replacing existing content.
type Storage interface {
	Save(ctx context.Context, path string, content io.Reader) error
}

type Notifier interface {
	Send(ctx context.Context, e notify.Event) error
}

// CompressFunc produces the artifact of a build from the compiled paths.
type CompressFunc func(ctx context.Context, paths []string, assetURL string, params notify.Params) ([]byte, error)

var (
	errNoStorage    = errors.New("no storage configured")
	errNoCompressor = errors.New("no compressor configured")
)

type Options struct {
	Config *config.Root
	// Sources is the file system bundle patterns are expanded against.
	Sources fs.FS
	// CSS and JS replace the bundles of the configuration when non-nil.
	CSS map[string]*config.Bundle
	JS  map[string]*config.Bundle
}

type Builder struct {
	registry    map[Kind]map[string]*config.Bundle
	sources     fs.FS
	templateExt string
	staticRoot  string
	staticURL   *url.URL

	compiler   Compiler
	compressor Compressor
	storage    Storage
	notifier   Notifier
	log        *logging.Logger
}

func New(opts Options) (*Builder, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Root{}
	}

	staticURL, err := url.Parse(cmp.Or(cfg.StaticURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid static_url: %w", err)
	}

	css, js := opts.CSS, opts.JS
	if css == nil {
		css = cfg.CSS
	}
	if js == nil {
		js = cfg.JS
	}

	return &Builder{
		registry: map[Kind]map[string]*config.Bundle{
			KindCSS: maps.Clone(css),
			KindJS:  maps.Clone(js),
		},
		sources:     opts.Sources,
		templateExt: cfg.TemplateExtension(),
		staticRoot:  cfg.StaticRoot,
		staticURL:   staticURL,
		compiler:    passThrough{},
		notifier:    nopNotifier{},
		log:         logging.NewNopLogger(),
	}, nil
}

func (b *Builder) WithCompiler(c Compiler) *Builder {
	b.compiler = c
	return b
}

func (b *Builder) WithCompressor(c Compressor) *Builder {
	b.compressor = c
	return b
}

func (b *Builder) WithStorage(s Storage) *Builder {
	b.storage = s
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithLogger(l *logging.Logger) *Builder {
	b.log = l
	return b
}

// Lookup returns a fresh Bundle for the named bundle of the given kind. The
// two kinds are separate namespaces.
func (b *Builder) Lookup(kind Kind, name string) (*bundle.Bundle, error) {
	bundles, ok := b.registry[kind]
	if !ok {
		return nil, &BundleNotFoundError{Kind: kind, Name: name}
	}
	cfg, ok := bundles[name]
	if !ok {
		return nil, &BundleNotFoundError{Kind: kind, Name: name}
	}
	if cfg.Name == "" {
		named := *cfg
		named.Name = name
		cfg = &named
	}
	return bundle.New(cfg, b.sources, b.templateExt), nil
}

// Bundles returns the sorted bundle names of a kind.
func (b *Builder) Bundles(kind Kind) []string {
	return slices.Sorted(maps.Keys(b.registry[kind]))
}

// IndividualURL returns the URL a single source file is served at before
// bundling: the path below the static root, resolved against the static URL.
func (b *Builder) IndividualURL(p string) string {
	p = filepath.ToSlash(p)

	if root := path.Clean(filepath.ToSlash(b.staticRoot)); root != "." && root != "" {
		if rel, ok := strings.CutPrefix(p, root+"/"); ok {
			p = rel
		}
	}

	rel := strings.TrimLeft(p, "/")
	return b.staticURL.ResolveReference(&url.URL{Path: rel}).String()
}

// Compile compiles each path, keeping order.
func (b *Builder) Compile(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		compiled, err := b.compiler.Compile(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

func (b *Builder) BuildStylesheets(ctx context.Context, bd *bundle.Bundle) (string, error) {
	absolutePaths := bd.AbsolutePaths()
	params := notify.Params{
		Variant:       bd.Variant(),
		AbsolutePaths: &absolutePaths,
	}

	return b.Build(ctx, bd, func(ctx context.Context, paths []string, assetURL string, params notify.Params) ([]byte, error) {
		if b.compressor == nil {
			return nil, errNoCompressor
		}
		return b.compressor.CompressCSS(ctx, paths, assetURL, params.Variant, *params.AbsolutePaths)
	}, notify.StylesheetsCompressed, params)
}

func (b *Builder) BuildScripts(ctx context.Context, bd *bundle.Bundle) (string, error) {
	if err := checkOutput(bd); err != nil {
		return "", err
	}

	templates, err := bd.Templates()
	if err != nil {
		return "", err
	}

	return b.Build(ctx, bd, func(ctx context.Context, paths []string, assetURL string, params notify.Params) ([]byte, error) {
		if b.compressor == nil {
			return nil, errNoCompressor
		}
		return b.compressor.CompressJS(ctx, paths, assetURL, params.Templates)
	}, notify.ScriptsCompressed, notify.Params{Templates: templates})
}

// BuildKind dispatches to BuildStylesheets or BuildScripts.
func (b *Builder) BuildKind(ctx context.Context, kind Kind, bd *bundle.Bundle) (string, error) {
	switch kind {
	case KindCSS:
		return b.BuildStylesheets(ctx, bd)
	case KindJS:
		return b.BuildScripts(ctx, bd)
	default:
		return "", &BundleNotFoundError{Kind: kind, Name: bd.Name()}
	}
}

// Build compiles the bundle's paths, compresses them, saves the result at the
// bundle's output filename and sends a kind event carrying params. Errors of
// the collaborators are returned as is; nothing is undone on failure.
func (b *Builder) Build(ctx context.Context, bd *bundle.Bundle, compress CompressFunc, kind notify.Kind, params notify.Params) (string, error) {
	if err := checkOutput(bd); err != nil {
		return "", err
	}
	output := bd.OutputFilename()

	if b.storage == nil {
		return "", errNoStorage
	}

	paths, err := bd.Paths()
	if err != nil {
		return "", err
	}

	compiled, err := b.Compile(ctx, paths)
	if err != nil {
		return "", err
	}

	content, err := compress(ctx, compiled, b.IndividualURL(output), params)
	if err != nil {
		return "", err
	}

	b.log.Debugf("Saving: %s", output)
	if err := b.storage.Save(ctx, output, bytes.NewReader(content)); err != nil {
		return "", err
	}

	if err := b.notifier.Send(ctx, notify.Event{Kind: kind, Bundle: bd, Params: params}); err != nil {
		return "", err
	}

	return output, nil
}

func checkOutput(bd *bundle.Bundle) error {
	if bd.OutputFilename() == "" {
		return &ConfigurationError{Bundle: bd.Name(), Field: "output_filename", Reason: "is required"}
	}
	return nil
}

// CompileTemplates returns the compiled templates of a bundle without
// saving anything.
func (b *Builder) CompileTemplates(ctx context.Context, bd *bundle.Bundle) (string, error) {
	if b.compressor == nil {
		return "", errNoCompressor
	}

	templates, err := bd.Templates()
	if err != nil {
		return "", err
	}

	return b.compressor.CompileTemplates(ctx, templates)
}

type passThrough struct{}

func (passThrough) Compile(_ context.Context, path string) (string, error) { return path, nil }

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, notify.Event) error { return nil }
