// Package minio provides a MultipartStore implementation using the MinIO
// client.
//
// MinIO is a high-performance, S3-compatible object storage system. This
// package uses the official MinIO Go client library, so it works with any
// S3-compatible storage such as Ceph, SeaweedFS, and Garage.
//
// The store is a thin proxy: atomicity and durability come from the remote
// service. The multipart protocol is staged the same way the filesystem
// engine stages it — per-part objects under
// multipartPrefix/<token>/<hash(key)>/part<NNNNN>, each carrying its
// content hash as user metadata — and assembled into the final object at
// finalize.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "objects/", "multipart/")
package minio
