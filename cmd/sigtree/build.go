package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/sigtree"
	"github.com/hupe1980/sigtree/blobstore"
	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/metric"
	"github.com/hupe1980/sigtree/oracle"
	"github.com/hupe1980/sigtree/signature"
	"github.com/hupe1980/sigtree/signature/minwise"
	"github.com/hupe1980/sigtree/signature/qgram"
	"github.com/hupe1980/sigtree/signature/stringset"
	"github.com/hupe1980/sigtree/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// ErrValidationFailed is returned with --fail-on-mismatch when a validation
// check failed.
var ErrValidationFailed = errors.New("validation failed")

type buildFlags struct {
	input          string
	scheme         string
	check          bool
	threads        int
	q              int
	hashSize       int
	top            int
	closure        bool
	skipPerCell    bool
	prefix         bool
	out            string
	name           string
	compression    string
	codec          string
	itemCache      int
	metricsFile    string
	failOnMismatch bool
	publish        bool
	sink           sinkFlags
}

func newBuildCmd(g *globalFlags) *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build, validate and serialize an index",
		Long: `build energizes the store given by -i, computes region, cell and item
signatures with the scheme selected by -t, populates the R-tree and validates
it against a bleve oracle. The serialized tree and traits streams are written
to --out and compared with the in-memory index.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if !knownScheme(f.scheme) {
				_ = cmd.Usage()
				return fmt.Errorf("%w: %q (valid: %s)", sigtree.ErrUnknownScheme, f.scheme, strings.Join(schemeNames(), ", "))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, g, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "store: badger directory or JSON dataset file (required)")
	fl.StringVarP(&f.scheme, "type", "t", "qgram", "signature scheme: "+strings.Join(schemeNames(), ", "))
	fl.BoolVar(&f.check, "check", false, "check tree consistency after every cell")
	fl.IntVar(&f.threads, "threads", 0, "worker count (0 = GOMAXPROCS)")
	fl.IntVarP(&f.q, "qgram", "q", qgram.DefaultOptions.Q, "q-gram length for qgram and minwise schemes")
	fl.IntVar(&f.hashSize, "hashSize", minwise.DefaultOptions.HashSize, "bytes kept per min-hash (1..8)")
	fl.IntVar(&f.top, "top", 100, "number of most frequent tokens to validate")
	fl.BoolVar(&f.closure, "ancestor-closure", false, "combine all transitive region ancestors into cell signatures")
	fl.BoolVar(&f.skipPerCell, "skip-per-cell", false, "skip the per-cell token validation pass")
	fl.BoolVar(&f.prefix, "prefix", false, "validate with prefix instead of exact token matching")
	fl.StringVar(&f.out, "out", "", "output: directory, file://, s3://bucket/prefix or minio://host:port/bucket/prefix")
	fl.StringVar(&f.name, "name", "index", "blob name of the serialized index")
	fl.StringVar(&f.compression, "compression", "zstd", "stream compression: none, lz4, zstd")
	fl.StringVar(&f.codec, "codec", codec.Default.Name(), "codec of a JSON dataset input")
	fl.IntVar(&f.itemCache, "item-cache", 100_000, "decoded items cached when reading a badger store")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	fl.BoolVar(&f.failOnMismatch, "fail-on-mismatch", false, "exit non-zero when validation finds a mismatch")
	fl.BoolVar(&f.publish, "publish", false, "save under a versioned name and update the <name>.current pointer")
	fl.StringVar(&f.sink.commitTable, "commit-table", "", "DynamoDB table for atomic pointer commits (s3:// outputs)")
	fl.StringVar(&f.sink.region, "region", "", "object store region")
	fl.StringVar(&f.sink.endpoint, "s3-endpoint", "", "custom S3 endpoint (path-style addressing)")
	fl.BoolVar(&f.sink.minioSecure, "minio-secure", true, "use TLS for minio:// outputs")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

type buildEnv struct {
	store   store.Store
	sink    blobstore.BlobStore
	name    string
	publish bool
	opts    []sigtree.Option
	logger  *sigtree.Logger
}

func runBuild(cmd *cobra.Command, g *globalFlags, f *buildFlags) error {
	ctx := cmd.Context()
	logger, err := g.logger(cmd)
	if err != nil {
		return err
	}
	comp, err := sigtree.ParseCompression(f.compression)
	if err != nil {
		return err
	}
	c, err := codec.Lookup(f.codec)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(f.input, c, f.itemCache)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, err := openSink(ctx, f.out, f.sink)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	env := &buildEnv{
		store:   st,
		sink:    sink,
		name:    f.name,
		publish: f.publish,
		logger:  logger,
		opts: []sigtree.Option{
			sigtree.WithLogger(logger),
			sigtree.WithCheck(f.check),
			sigtree.WithWorkers(f.threads),
			sigtree.WithTopK(f.top),
			sigtree.WithAncestorClosure(f.closure),
			sigtree.WithSkipPerCell(f.skipPerCell),
			sigtree.WithMatchOptions(signature.MatchOptions{Prefix: f.prefix}),
			sigtree.WithCompression(comp),
			sigtree.WithMetricsCollector(metric.NewPrometheusCollector(reg)),
		},
	}

	r, err := buildScheme(ctx, env, f)
	if err != nil {
		return err
	}

	if f.metricsFile != "" {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"build %s: consistent=%t cells=%d spatial_failures=%d tokens=%d queries=%d cell_queries=%d failed_queries=%d\n",
		r.BuildID, r.Consistent, r.CellsChecked, len(r.SpatialFailures),
		len(r.Tokens), r.Queries, r.CellQueries, r.FailedQueries)

	if f.failOnMismatch && r.Failed() {
		return ErrValidationFailed
	}
	return nil
}

func buildScheme(ctx context.Context, env *buildEnv, f *buildFlags) (*sigtree.Report, error) {
	switch name := f.scheme; {
	case name == stringset.Name:
		return run[*roaring.Bitmap](ctx, env, stringset.New())
	case name == qgram.Name:
		return run[*bitset.BitSet](ctx, env, qgram.New(func(o *qgram.Options) {
			o.Q = f.q
		}))
	case strings.HasPrefix(name, "minwise-") && knownScheme(name):
		s, err := minwise.New(func(o *minwise.Options) {
			o.Family = minwise.Family(strings.TrimPrefix(name, "minwise-"))
			o.Q = f.q
			o.HashSize = f.hashSize
		})
		if err != nil {
			return nil, err
		}
		return run[minwise.Signature](ctx, env, s)
	default:
		return nil, fmt.Errorf("%w: %q", sigtree.ErrUnknownScheme, name)
	}
}

func run[S any](ctx context.Context, env *buildEnv, scheme signature.Scheme[S]) (*sigtree.Report, error) {
	idx, err := sigtree.NewBuilder(env.store, scheme, env.opts...).Build(ctx)
	if err != nil {
		return nil, err
	}

	o, err := oracle.NewBleve(ctx, env.store)
	if err != nil {
		return nil, err
	}
	defer o.Close()

	r, err := sigtree.NewValidator(idx, o).Validate(ctx)
	if err != nil {
		return nil, err
	}

	name := env.name
	if env.publish {
		if name, err = idx.Publish(ctx, env.sink, env.name); err != nil {
			return nil, err
		}
	} else if err := idx.Save(ctx, env.sink, name); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}

	ok, err := idx.EqualStored(ctx, env.sink, name)
	if err != nil {
		return nil, fmt.Errorf("read back index: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("serialized index %q differs from the built index", name)
	}
	env.logger.InfoContext(ctx, "serialized index verified", "name", name, "scheme", scheme.Name())
	return r, nil
}
