// Package objstore provides an object-storage abstraction with
// interchangeable backends.
//
// Store is the core contract (URL, Has, Get, Put, Delete); MultipartStore
// extends it with a multipart-upload protocol: init to obtain a session
// token, upload per chunk to obtain a content hash per chunk, finalize
// with the ordered (number, hash) list, or abort to discard everything.
//
// # Built-in Implementations
//
//   - FSStore: local filesystem, atomic to readers via non-blocking
//     advisory locks; multipart parts staged on disk and assembled only
//     after every declared hash verifies
//   - MemoryStore: in-memory reference implementation of the same
//     protocol invariants
//   - minio.Store: MinIO and S3-compatible storage via the MinIO client
//   - s3.Store: Amazon S3 using native multipart uploads
//
// # Usage
//
//	store := objstore.NewFSStore("/data/objects", "/data/multipart")
//
//	obj := objstore.NewObject("docs/a.txt", objstore.BytesSource(data))
//	if _, err := store.Put(ctx, obj).Await(ctx); err != nil {
//	    return err
//	}
//
//	got, err := store.Get(ctx, "docs/a.txt").Await(ctx)
//
// Every operation returns a *future.Value; work runs to completion at
// invocation (or on a goroutine for network backends) and failures become
// rejected futures. Errors map to three categories callers can branch on
// without string matching: ErrNotFound, ErrBadData, ErrStorage.
package objstore
