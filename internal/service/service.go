// Package service wires the configured bundles to a builder and builds them
// on a worker pool, either once or periodically.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync"

	"github.com/assetpipe/assetctl/internal/builder"
	"github.com/assetpipe/assetctl/internal/compiler"
	"github.com/assetpipe/assetctl/internal/compressor"
	"github.com/assetpipe/assetctl/internal/config"
	assetfs "github.com/assetpipe/assetctl/internal/fs"
	"github.com/assetpipe/assetctl/internal/httpsync"
	"github.com/assetpipe/assetctl/internal/logging"
	"github.com/assetpipe/assetctl/internal/manifest"
	"github.com/assetpipe/assetctl/internal/notify"
	"github.com/assetpipe/assetctl/internal/pool"
	"github.com/assetpipe/assetctl/internal/progress"
	"github.com/assetpipe/assetctl/internal/storage"
)

type Service struct {
	config      *config.Root
	storage     storage.Storage
	selection   map[builder.Kind][]string
	singleShot  bool
	parallelism int
	log         *logging.Logger
	progressOut io.Writer

	mu       sync.Mutex
	builder  *builder.Builder
	manifest *manifest.Manifest
	pool     *pool.Pool
	workers  []*BundleWorker
}

// Result is the outcome of the last build of a bundle.
type Result struct {
	Kind   builder.Kind
	Name   string
	Status Status
}

func New() *Service {
	return &Service{
		parallelism: runtime.GOMAXPROCS(0),
		log:         logging.NewNopLogger(),
	}
}

func (s *Service) WithConfig(cfg *config.Root) *Service {
	s.config = cfg
	return s
}

// WithStorage replaces the storage backend of the configuration.
func (s *Service) WithStorage(st storage.Storage) *Service {
	s.storage = st
	return s
}

// WithSelection restricts the build to the named bundles of a kind, or to
// all bundles of the kind when no names are given. Without a selection every
// configured bundle is built.
func (s *Service) WithSelection(kind builder.Kind, names ...string) *Service {
	if s.selection == nil {
		s.selection = make(map[builder.Kind][]string)
	}
	s.selection[kind] = append(s.selection[kind], names...)
	return s
}

func (s *Service) WithSingleShot(singleShot bool) *Service {
	s.singleShot = singleShot
	return s
}

func (s *Service) WithParallelism(n int) *Service {
	if n > 0 {
		s.parallelism = n
	}
	return s
}

func (s *Service) WithLogger(l *logging.Logger) *Service {
	s.log = l
	return s
}

// WithProgress reports single shot builds as a progress bar on w.
func (s *Service) WithProgress(w io.Writer) *Service {
	s.progressOut = w
	return s
}

// Builder assembles the builder and its collaborators from the configuration.
func (s *Service) Builder(ctx context.Context) (*builder.Builder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.builder != nil {
		return s.builder, nil
	}

	cfg := s.config
	if cfg == nil {
		return nil, errors.New("no configuration")
	}

	tree, err := assetfs.NewTree(cfg.SourceDirectories(), cfg.ExcludedFiles, cfg.CompileDirectory())
	if err != nil {
		return nil, err
	}
	if ok, err := assetfs.FSContainsFiles(tree.Sources); err == nil && !ok {
		s.log.Warnf("No source files found in %d source directories", len(cfg.SourceDirectories()))
	}

	st := s.storage
	if st == nil {
		st, err = storage.New(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
	}

	notifier := notify.New()
	if cfg.Manifest != nil {
		s.manifest = manifest.New()
		s.manifest.Subscribe(notifier)
	}

	b, err := builder.New(builder.Options{Config: cfg, Sources: tree.Sources})
	if err != nil {
		return nil, err
	}

	c, err := compressor.New(cfg.CompressorOptions(), tree.Assets, b.IndividualURL)
	if err != nil {
		return nil, err
	}

	s.storage = st
	s.builder = b.
		WithCompiler(compiler.New(tree.Sources, tree.CompileDir).
			WithFileCompiler(compiler.NewESBuild()).
			WithLogger(s.log)).
		WithCompressor(c).
		WithStorage(st).
		WithNotifier(notifier).
		WithLogger(s.log)

	return s.builder, nil
}

// Run downloads the remote files of the configuration and builds the
// selected bundles. A single shot run returns once every
// bundle has been built, with the failures joined into the returned error.
// Otherwise bundles are rebuilt periodically until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.config != nil {
		if err := httpsync.Sync(ctx, s.config, s.log); err != nil {
			return err
		}
	}

	b, err := s.Builder(ctx)
	if err != nil {
		return err
	}

	workers, err := s.selectWorkers(b)
	if err != nil {
		return err
	}

	var bar *progress.Bar
	if s.singleShot && s.progressOut != nil {
		bar = progress.NewWithWriter(s.progressOut, len(workers), "Building bundles")
	}

	for _, w := range workers {
		w.bar = bar
		w.WithSingleShot(s.singleShot).WithInterval(s.config.RebuildInterval())
		if !s.singleShot {
			w.WithOnBuilt(s.writeManifest)
		}
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := pool.New(poolCtx, s.parallelism)

	s.mu.Lock()
	s.pool = p
	s.workers = workers
	s.mu.Unlock()

	for _, w := range workers {
		p.Add(w.Key(), w.Execute)
	}

	if !s.singleShot {
		<-ctx.Done()
		p.Wait()
		return nil
	}

	for _, w := range workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			p.Wait()
			return ctx.Err()
		}
	}
	bar.Finish()
	cancel()
	p.Wait()

	var errs []error
	for _, r := range s.Results() {
		if r.Status.Err != nil {
			errs = append(errs, fmt.Errorf("%s bundle %q: %w", r.Kind, r.Name, r.Status.Err))
		}
	}

	if err := s.writeManifest(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Trigger schedules an immediate rebuild of every bundle of a running
// service.
func (s *Service) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return errors.New("service is not running")
	}

	var errs []error
	for _, w := range s.workers {
		if err := s.pool.Trigger(w.Key()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Results returns the status of every selected bundle, ordered by kind and
// name.
func (s *Service) Results() []Result {
	s.mu.Lock()
	workers := slices.Clone(s.workers)
	s.mu.Unlock()

	results := make([]Result, 0, len(workers))
	for _, w := range workers {
		results = append(results, Result{Kind: w.kind, Name: w.name, Status: w.Status()})
	}
	return results
}

// selectWorkers returns one worker per selected bundle, ordered by kind and
// name. Unknown names are reported together.
func (s *Service) selectWorkers(b *builder.Builder) ([]*BundleWorker, error) {
	var (
		workers []*BundleWorker
		errs    []error
	)

	for _, kind := range builder.Kinds {
		names := b.Bundles(kind)

		if s.selection != nil {
			selected, ok := s.selection[kind]
			if !ok {
				continue
			}
			if len(selected) > 0 {
				names = slices.Compact(slices.Sorted(slices.Values(selected)))
			}
		}

		for _, name := range names {
			if _, err := b.Lookup(kind, name); err != nil {
				errs = append(errs, err)
				continue
			}
			workers = append(workers, NewBundleWorker(kind, name, b, s.log.With("bundle", string(kind)+"/"+name), nil))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return workers, nil
}

func (s *Service) writeManifest(ctx context.Context) error {
	if s.manifest == nil || s.config.Manifest == nil || s.config.Manifest.Path == "" {
		return nil
	}

	if err := s.manifest.Write(ctx, s.storage, s.config.Manifest.Path); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
