// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("indexes/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	err = idx.Save(ctx, store, "berlin")
//
// # Features
//
//   - Multipart uploads for large tree streams
//   - Range reads for partial fetches
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
