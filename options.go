package indexmerge

import (
	"log/slog"

	"github.com/hupe1980/indexmerge/internal/attribute"
	"github.com/hupe1980/indexmerge/resource"
)

type options struct {
	logger      *Logger
	metrics     MetricsObserver
	resource    *resource.Controller
	concurrency int
	registry    *attribute.Registry
	memLimit    int64
}

// Option configures Run.
type Option func(*options)

// WithLogger configures structured logging for the run.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := indexmerge.NewJSONLogger(slog.LevelInfo)
//	res, err := indexmerge.Run(ctx, plan, indexmerge.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetrics configures an observer for per-index merge metrics.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsObserver:
//
//	m := &indexmerge.BasicMetricsObserver{}
//	_, err := indexmerge.Run(ctx, plan, indexmerge.WithMetrics(m))
//	fmt.Println(m.GetStats().MergeCount)
func WithMetrics(m MetricsObserver) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithResourceController bounds memory, merge slots and write bandwidth.
// Without it a run is unbounded.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

// WithConcurrency caps the number of index mergers running at once.
// Zero derives the cap from the resource controller, or runs one merger
// at a time when there is none.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithRegistry replaces the attribute merger registry, e.g. to add
// custom attribute types.
func WithRegistry(r *attribute.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithMergeSwitchMemoryLimit bounds the bytes of open source readers of a
// variable-length attribute merge. Plans may override it per attribute.
func WithMergeSwitchMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memLimit = bytes
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metrics: NoopMetricsObserver{},
		logger:  NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metrics == nil {
		o.metrics = NoopMetricsObserver{}
	}
	if o.registry == nil {
		o.registry = attribute.NewRegistry()
	}
	if o.concurrency <= 0 {
		o.concurrency = int(o.resource.Config().MaxConcurrentMerges)
		if o.concurrency <= 0 {
			o.concurrency = 1
		}
	}
	return o
}
