package sigtree

import (
	"runtime"

	"github.com/hupe1980/sigtree/internal/compress"
	"github.com/hupe1980/sigtree/rtree"
	"github.com/hupe1980/sigtree/signature"
)

// DefaultTopK is the number of most frequent key/value pairs checked by the
// token validation.
const DefaultTopK = 100

type options struct {
	check            bool
	workers          int
	metricsCollector MetricsCollector
	logger           *Logger
	topK             int
	ancestorClosure  bool
	compression      Compression
	skipPerCell      bool
	matchOptions     signature.MatchOptions
	treeOptions      []func(*rtree.Options)
}

// Option configures building, validating and serializing an index.
type Option func(*options)

// WithCheck enables a tree consistency check after every cell and once
// after the last one. A failing check aborts the build with a
// *CreationError.
func WithCheck(check bool) Option {
	return func(o *options) {
		o.check = check
	}
}

// WithWorkers bounds the parallelism of signature computation and
// validation queries. Values < 1 select runtime.GOMAXPROCS(0).
//
// Tree insertion is always sequential.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &sigtree.BasicMetricsCollector{}
//	idx, _ := sigtree.NewBuilder(st, scheme, sigtree.WithMetricsCollector(metrics)).Build(ctx)
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithTopK sets how many of the most frequent key/value pairs the token
// validation queries.
func WithTopK(k int) Option {
	return func(o *options) {
		o.topK = k
	}
}

// WithAncestorClosure makes cell signatures combine all regions reachable
// through the region DAG instead of the cell's listed parents only.
func WithAncestorClosure(closure bool) Option {
	return func(o *options) {
		o.ancestorClosure = closure
	}
}

// Compression selects the block compression of serialized streams.
type Compression = compress.Type

// Supported compressions.
const (
	CompressionNone = compress.None
	CompressionLZ4  = compress.LZ4
	CompressionZSTD = compress.ZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	return compress.ParseType(s)
}

// WithCompression sets the compression of serialized streams.
func WithCompression(t Compression) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithSkipPerCell disables the per-cell repetition of the token validation.
func WithSkipPerCell(skip bool) Option {
	return func(o *options) {
		o.skipPerCell = skip
	}
}

// WithMatchOptions sets the signature match options used by validation
// queries.
func WithMatchOptions(mo signature.MatchOptions) Option {
	return func(o *options) {
		o.matchOptions = mo
	}
}

// WithTreeOptions configures the spatial tree.
func WithTreeOptions(optFns ...func(*rtree.Options)) Option {
	return func(o *options) {
		o.treeOptions = append(o.treeOptions, optFns...)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		topK:             DefaultTopK,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.workers < 1 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	return o
}
