package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/assetpipe/assetctl/internal/builder"
	"github.com/assetpipe/assetctl/internal/compiler"
	"github.com/assetpipe/assetctl/internal/logging"
	"github.com/assetpipe/assetctl/internal/metrics"
	"github.com/assetpipe/assetctl/internal/progress"
)

var (
	defaultInterval = 30 * time.Second
	errorInterval   = 10 * time.Second
)

type BuildState int

const (
	BuildStatePending BuildState = iota
	BuildStateSuccess
	BuildStateNotFound
	BuildStateConfigurationError
	BuildStateCompileFailed
	BuildStateBuildFailed
	BuildStateInternalError
)

func (s BuildState) String() string {
	switch s {
	case BuildStatePending:
		return "PENDING"
	case BuildStateSuccess:
		return "SUCCESS"
	case BuildStateNotFound:
		return "NOT_FOUND"
	case BuildStateConfigurationError:
		return "CONFIGURATION_ERROR"
	case BuildStateCompileFailed:
		return "COMPILE_FAILED"
	case BuildStateBuildFailed:
		return "BUILD_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}

type Status struct {
	State   BuildState
	Output  string
	Message string
	Err     error
}

// BundleWorker builds one bundle. It looks the bundle up on every run, so
// files added to the source directories are picked up by the next build.
type BundleWorker struct {
	kind       builder.Kind
	name       string
	builder    *builder.Builder
	onBuilt    func(context.Context) error
	done       chan struct{}
	singleShot bool
	log        *logging.Logger
	bar        *progress.Bar
	interval   time.Duration

	mu     sync.Mutex
	status Status
}

func NewBundleWorker(kind builder.Kind, name string, b *builder.Builder, logger *logging.Logger, bar *progress.Bar) *BundleWorker {
	return &BundleWorker{
		kind:     kind,
		name:     name,
		builder:  b,
		log:      logger,
		bar:      bar,
		done:     make(chan struct{}),
		interval: defaultInterval,
	}
}

func (w *BundleWorker) WithSingleShot(singleShot bool) *BundleWorker {
	w.singleShot = singleShot
	return w
}

func (w *BundleWorker) WithInterval(d time.Duration) *BundleWorker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// WithOnBuilt registers a function run after every successful build.
func (w *BundleWorker) WithOnBuilt(f func(context.Context) error) *BundleWorker {
	w.onBuilt = f
	return w
}

func (w *BundleWorker) Key() string {
	return string(w.kind) + "/" + w.name
}

func (w *BundleWorker) Done() <-chan struct{} {
	return w.done
}

func (w *BundleWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Execute runs one build of the bundle and returns the time of the next one,
// or the zero time once a single shot worker has run.
func (w *BundleWorker) Execute(ctx context.Context) time.Time {
	startTime := time.Now() // Used for timing metric

	defer w.bar.Add(1)

	bd, err := w.builder.Lookup(w.kind, w.name)
	if err != nil {
		w.log.Warnf("failed to look up %s bundle %q: %v", w.kind, w.name, err)
		return w.report(BuildStateNotFound, startTime, "", err)
	}

	output, err := w.builder.BuildKind(ctx, w.kind, bd)
	if err != nil {
		w.log.Warnf("failed to build %s bundle %q: %v", w.kind, w.name, err)
		return w.report(classify(err), startTime, "", err)
	}

	if w.onBuilt != nil {
		if err := w.onBuilt(ctx); err != nil {
			w.log.Warnf("failed to finish %s bundle %q: %v", w.kind, w.name, err)
			return w.report(BuildStateInternalError, startTime, output, err)
		}
	}

	w.log.Infof("Bundle %s %q built: %s", w.kind, w.name, output)
	return w.report(BuildStateSuccess, startTime, output, nil)
}

func classify(err error) BuildState {
	var ce *compiler.CompileError
	switch {
	case errors.Is(err, builder.ErrConfiguration):
		return BuildStateConfigurationError
	case errors.As(err, &ce):
		return BuildStateCompileFailed
	default:
		return BuildStateBuildFailed
	}
}

func (w *BundleWorker) report(state BuildState, startTime time.Time, output string, err error) time.Time {
	interval := w.interval

	w.mu.Lock()
	w.status = Status{State: state, Output: output, Err: err}
	if err != nil {
		interval = errorInterval // faster retry on error
		w.status.Message = err.Error()
	}
	w.mu.Unlock()

	if state == BuildStateSuccess {
		metrics.BundleBuildSucceeded(string(w.kind), w.name, startTime)
	} else {
		metrics.BundleBuildFailed(string(w.kind), w.name, state.String())
	}

	if w.singleShot {
		return w.die()
	}

	return time.Now().Add(interval)
}

func (w *BundleWorker) die() time.Time {
	close(w.done)

	var zero time.Time
	return zero
}
