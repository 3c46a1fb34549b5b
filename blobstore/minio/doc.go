// Package minio provides a BlobStore implementation using the MinIO client.
//
// MinIO is an S3-compatible object storage system. This package uses the
// official MinIO Go client library and works with other S3-compatible
// services like Ceph, SeaweedFS and Garage.
//
// # Basic Usage
//
//	store, err := minioblob.New("localhost:9000", "indexes",
//	    minioblob.WithCredentials("minioadmin", "minioadmin"),
//	    minioblob.WithPrefix("berlin/"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = idx.Save(ctx, store, "osm")
//
// An existing client can be wrapped with NewStore.
package minio
