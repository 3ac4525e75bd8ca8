package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hupe1980/objstore"
	"github.com/hupe1980/objstore/future"
)

// Client is the subset of the S3 API the store needs. *s3.Client satisfies
// it, and it covers manager.UploadAPIClient so the transfer manager can
// reuse the same client.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Store implements objstore.MultipartStore for S3.
//
// Multipart uploads map directly onto the native S3 protocol: the token is
// the S3 UploadId and part hashes are the ETags S3 returns, so there is no
// staging area of our own and S3 reaps abandoned sessions through bucket
// lifecycle rules.
type Store struct {
	client   Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ objstore.MultipartStore = (*Store)(nil)

// NewStore creates a new S3 store.
// rootPrefix is prepended to all object keys (e.g. "objects/").
func NewStore(client Client, bucket, rootPrefix string) *Store {
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// URL returns the s3:// location of the key. No I/O.
func (s *Store) URL(key string) string {
	return "s3://" + path.Join(s.bucket, s.key(key))
}

func (s *Store) Has(ctx context.Context, key string) *future.Value[bool] {
	return future.Go(func() (bool, error) {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
		})
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, objstore.NewStorageError("has", key, err)
		}
		return true, nil
	})
}

func (s *Store) Get(ctx context.Context, key string) *future.Value[*objstore.Object] {
	return future.Go(func() (*objstore.Object, error) {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
		})
		if err != nil {
			if isNotFound(err) {
				return nil, &objstore.NotFoundError{Key: key}
			}
			return nil, objstore.NewStorageError("get", key, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, objstore.NewStorageError("get", key, err)
		}

		result := objstore.NewObject(key, objstore.BytesSource(data))
		ct := aws.ToString(resp.ContentType)
		if ct == "" {
			ct = objstore.InferContentType(key, objstore.DefaultContentType)
		}
		result.SetContentType(ct)
		return result, nil
	})
}

func (s *Store) Put(ctx context.Context, obj *objstore.Object) *future.Value[future.Unit] {
	return future.GoVoid(func() error {
		if obj.Data == nil {
			return &objstore.BadDataError{Reason: "object " + obj.Key + " has no data"}
		}
		rc, err := obj.Data.Detach()
		if err != nil {
			return err
		}
		defer rc.Close()

		ct := obj.ContentType()
		if ct == "" {
			ct = objstore.InferContentType(obj.Key, objstore.DefaultContentType)
		}

		// The transfer manager splits large payloads into concurrent
		// part uploads behind the scenes.
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(obj.Key)),
			Body:        rc,
			ContentType: aws.String(ct),
		})
		if err != nil {
			return objstore.NewStorageError("put", obj.Key, err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, key string) *future.Value[future.Unit] {
	return future.GoVoid(func() error {
		// S3 DeleteObject succeeds on absent keys, so deletes are
		// naturally idempotent.
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(key)),
		})
		if err != nil {
			return objstore.NewStorageError("delete", key, err)
		}
		return nil
	})
}

func (s *Store) MultipartInit(ctx context.Context, obj *objstore.Object) *future.Value[string] {
	return future.Go(func() (string, error) {
		ct := obj.ContentType()
		if ct == "" {
			ct = objstore.InferContentType(obj.Key, objstore.DefaultContentType)
		}

		resp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.key(obj.Key)),
			ContentType: aws.String(ct),
		})
		if err != nil {
			return "", objstore.NewStorageError("multipart init", obj.Key, err)
		}
		return aws.ToString(resp.UploadId), nil
	})
}

func (s *Store) MultipartUpload(ctx context.Context, obj *objstore.Object, token string, part *objstore.FilePart) *future.Value[string] {
	return future.Go(func() (string, error) {
		if part.Data != nil {
			defer part.Data.Close()
		}

		if err := objstore.ValidatePartNumber(part.Number); err != nil {
			return "", err
		}
		if part.Data == nil {
			return "", &objstore.BadDataError{Reason: "part has no data"}
		}
		rc, err := part.Data.Detach()
		if err != nil {
			return "", err
		}
		defer rc.Close()

		// Buffer the part so the request body is seekable for signing.
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", objstore.NewStorageError("multipart upload", obj.Key, err)
		}

		// UploadId is scoped to the key it was created for, so a token
		// used with another key fails as NoSuchUpload.
		resp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.key(obj.Key)),
			UploadId:      aws.String(token),
			PartNumber:    aws.Int32(int32(part.Number)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			if isNoSuchUpload(err) {
				return "", objstore.NewNotInitializedError(token)
			}
			return "", objstore.NewStorageError("multipart upload", obj.Key, err)
		}
		return trimETag(aws.ToString(resp.ETag)), nil
	})
}

func (s *Store) MultipartFinalize(ctx context.Context, obj *objstore.Object, token string, parts ...*objstore.FilePart) *future.Value[future.Unit] {
	return future.GoVoid(func() error {
		if err := objstore.ValidatePartList(parts); err != nil {
			return err
		}

		uploaded, err := s.listParts(ctx, obj.Key, token)
		if err != nil {
			return err
		}
		for _, part := range parts {
			etag, ok := uploaded[int32(part.Number)]
			if !ok {
				return objstore.NewPartNotUploadedError(part.Number)
			}
			if etag != part.Hash {
				return objstore.NewHashMismatchError(part.Number)
			}
		}

		completed := make([]types.CompletedPart, len(parts))
		for i, part := range parts {
			completed[i] = types.CompletedPart{
				ETag:       aws.String(part.Hash),
				PartNumber: aws.Int32(int32(part.Number)),
			}
		}

		_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(s.key(obj.Key)),
			UploadId: aws.String(token),
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: completed,
			},
		})
		if err != nil {
			if isNoSuchUpload(err) {
				return objstore.NewNotInitializedError(token)
			}
			return objstore.NewStorageError("multipart finalize", obj.Key, err)
		}
		return nil
	})
}

func (s *Store) MultipartAbort(ctx context.Context, obj *objstore.Object, token string) *future.Value[future.Unit] {
	return future.GoVoid(func() error {
		_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(s.key(obj.Key)),
			UploadId: aws.String(token),
		})
		// Aborting an unknown or already aborted session is a no-op.
		if err != nil && !isNoSuchUpload(err) {
			return objstore.NewStorageError("multipart abort", obj.Key, err)
		}
		return nil
	})
}

// listParts collects the session's uploaded parts as number to ETag,
// following the part-number marker across pages.
func (s *Store) listParts(ctx context.Context, key, token string) (map[int32]string, error) {
	uploaded := make(map[int32]string)

	input := &s3.ListPartsInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(key)),
		UploadId: aws.String(token),
	}
	for {
		page, err := s.client.ListParts(ctx, input)
		if err != nil {
			if isNoSuchUpload(err) {
				return nil, objstore.NewNotInitializedError(token)
			}
			return nil, objstore.NewStorageError("multipart finalize", key, err)
		}
		for _, p := range page.Parts {
			uploaded[aws.ToInt32(p.PartNumber)] = trimETag(aws.ToString(p.ETag))
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		input.PartNumberMarker = page.NextPartNumberMarker
	}
	return uploaded, nil
}

// trimETag strips the quotes S3 wraps around ETag values.
func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}

func isNoSuchUpload(err error) bool {
	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchUpload"
}
