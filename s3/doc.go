// Package s3 provides an S3 implementation of the objstore.MultipartStore
// interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := s3.NewStore(s3.NewFromConfig(cfg), "my-bucket", "objects/")
//
// # Features
//
//   - Native S3 multipart uploads: the upload token is the S3 UploadId and
//     part hashes are the ETags S3 returns, so parts never land in a
//     staging area and finalize is a single CompleteMultipartUpload call
//   - Whole-object writes go through the transfer manager, which splits
//     large payloads into concurrent part uploads
//   - Configurable prefix for multi-tenant isolation
package s3
