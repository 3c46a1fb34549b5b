package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hupe1980/sigtree/blobstore"
	"github.com/hupe1980/sigtree/blobstore/minio"
	"github.com/hupe1980/sigtree/blobstore/s3"
)

type sinkFlags struct {
	region      string
	endpoint    string
	minioSecure bool
	commitTable string
}

// openSink resolves --out to a blob store:
//
//	""                          in-memory (round-trip check only)
//	/path or file:///path       local directory
//	s3://bucket/prefix          AWS S3 (or --s3-endpoint)
//	minio://host:port/bucket/p  MinIO
//
// With --commit-table, s3 outputs commit published pointers through
// DynamoDB.
func openSink(ctx context.Context, out string, f sinkFlags) (blobstore.BlobStore, error) {
	if f.commitTable != "" && !strings.HasPrefix(out, "s3://") {
		return nil, fmt.Errorf("--commit-table requires an s3:// output, got %q", out)
	}
	if out == "" {
		return blobstore.NewMemoryStore(), nil
	}
	if !strings.Contains(out, "://") {
		return blobstore.NewLocalStore(out), nil
	}

	u, err := url.Parse(out)
	if err != nil {
		return nil, fmt.Errorf("invalid --out %q: %w", out, err)
	}
	prefix := strings.Trim(u.Path, "/")

	switch u.Scheme {
	case "file":
		return blobstore.NewLocalStore(u.Path), nil
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("invalid --out %q: missing bucket", out)
		}
		opts := []s3.Option{s3.WithPrefix(prefix)}
		if f.region != "" {
			opts = append(opts, s3.WithRegion(f.region))
		}
		if f.endpoint != "" {
			opts = append(opts, s3.WithEndpoint(f.endpoint))
		}
		if f.commitTable != "" {
			st, err := s3.NewCommitStore(ctx, u.Host, f.commitTable, opts...)
			if err != nil {
				return nil, err
			}
			return st, nil
		}
		st, err := s3.New(ctx, u.Host, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "minio":
		bucket, rest, _ := strings.Cut(prefix, "/")
		if u.Host == "" || bucket == "" {
			return nil, fmt.Errorf("invalid --out %q: want minio://host:port/bucket[/prefix]", out)
		}
		opts := []minio.Option{minio.WithPrefix(rest), minio.WithSecure(f.minioSecure)}
		if f.region != "" {
			opts = append(opts, minio.WithRegion(f.region))
		}
		st, err := minio.New(u.Host, bucket, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("invalid --out %q: unsupported scheme %q", out, u.Scheme)
	}
}
