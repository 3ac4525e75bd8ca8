package minio

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/objstore"
	"github.com/hupe1980/objstore/future"
)

// userMetaHash is the user-metadata key carrying a staged part's content
// hash. MinIO canonicalizes user metadata keys, so the constant is kept in
// canonical form.
const userMetaHash = "Content-Hash"

// sessionMarker is the zero-byte object marking a live upload session.
const sessionMarker = ".session"

// Store implements objstore.MultipartStore for MinIO and S3-compatible
// storage.
type Store struct {
	client          *minio.Client
	bucket          string
	prefix          string
	multipartPrefix string
	hash            objstore.HashAlgorithm
}

var _ objstore.MultipartStore = (*Store)(nil)

// Option configures the store at construction time.
type Option func(*Store)

// WithHashAlgorithm selects the content-hash function used for staging
// prefixes and part verification. Default: sha256.
func WithHashAlgorithm(a objstore.HashAlgorithm) Option {
	return func(s *Store) {
		s.hash = a
	}
}

// NewStore creates a new MinIO store.
// bucket is the MinIO bucket name; rootPrefix is prepended to all object
// keys (e.g. "objects/"); multipartPrefix roots the staging tree for
// in-flight multipart sessions and must not overlap rootPrefix.
func NewStore(client *minio.Client, bucket, rootPrefix, multipartPrefix string, opt ...Option) *Store {
	s := &Store{
		client:          client,
		bucket:          bucket,
		prefix:          rootPrefix,
		multipartPrefix: multipartPrefix,
		hash:            objstore.HashSHA256,
	}
	for _, fn := range opt {
		fn(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// sessionPrefix scopes a token to the key it was initialized for, the same
// way the filesystem engine keys its staging subdirectory by hash(key).
func (s *Store) sessionPrefix(token, key string) (string, error) {
	keyHash, err := s.hash.Sum([]byte(key))
	if err != nil {
		return "", objstore.NewStorageError("hash", key, err)
	}
	return path.Join(s.multipartPrefix, token, keyHash), nil
}

// URL derives the object's location from the client endpoint. No I/O.
func (s *Store) URL(key string) string {
	return s.client.EndpointURL().String() + "/" + path.Join(s.bucket, s.key(key))
}

func (s *Store) Has(ctx context.Context, key string) *future.Value[bool] {
	return future.Go(func() (bool, error) {
		_, err := s.client.StatObject(ctx, s.bucket, s.key(key), minio.StatObjectOptions{})
		if err != nil {
			if isNoSuchKey(err) {
				return false, nil
			}
			return false, objstore.NewStorageError("has", key, err)
		}
		return true, nil
	})
}

func (s *Store) Get(ctx context.Context, key string) *future.Value[*objstore.Object] {
	return future.Go(func() (*objstore.Object, error) {
		obj, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
		if err != nil {
			return nil, objstore.NewStorageError("get", key, err)
		}
		defer obj.Close()

		// Stat forces the first request; a missing key surfaces here.
		info, err := obj.Stat()
		if err != nil {
			if isNoSuchKey(err) {
				return nil, &objstore.NotFoundError{Key: key}
			}
			return nil, objstore.NewStorageError("get", key, err)
		}

		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, objstore.NewStorageError("get", key, err)
		}

		result := objstore.NewObject(key, objstore.BytesSource(data))
		ct := info.ContentType
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

		_, err = s.client.PutObject(ctx, s.bucket, s.key(obj.Key), rc, -1, minio.PutObjectOptions{
			ContentType: ct,
		})
		if err != nil {
			return objstore.NewStorageError("put", obj.Key, err)
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, key string) *future.Value[future.Unit] {
	return future.GoVoid(func() error {
		err := s.client.RemoveObject(ctx, s.bucket, s.key(key), minio.RemoveObjectOptions{})
		if err != nil && !isNoSuchKey(err) {
			return objstore.NewStorageError("delete", key, err)
		}
		return nil
	})
}

func (s *Store) MultipartInit(ctx context.Context, obj *objstore.Object) *future.Value[string] {
	return future.Go(func() (string, error) {
		token := uuid.NewString()

		prefix, err := s.sessionPrefix(token, obj.Key)
		if err != nil {
			return "", err
		}

		marker := path.Join(prefix, sessionMarker)
		_, err = s.client.PutObject(ctx, s.bucket, marker, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
		if err != nil {
			return "", objstore.NewStorageError("multipart init", obj.Key, err)
		}
		return token, nil
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

		prefix, err := s.sessionPrefix(token, obj.Key)
		if err != nil {
			return "", err
		}
		if err := s.requireSession(ctx, prefix, token); err != nil {
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

		// Hash while streaming; the sum is attached to the staged part
		// so finalize can verify without re-reading the payload.
		h, err := s.hash.New()
		if err != nil {
			return "", objstore.NewStorageError("hash", obj.Key, err)
		}
		data, err := io.ReadAll(io.TeeReader(rc, h))
		if err != nil {
			return "", objstore.NewStorageError("multipart upload", obj.Key, err)
		}
		sum := hex.EncodeToString(h.Sum(nil))

		partKey := path.Join(prefix, objstore.PartFileName(part.Number))
		_, err = s.client.PutObject(ctx, s.bucket, partKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			UserMetadata: map[string]string{userMetaHash: sum},
		})
		if err != nil {
			return "", objstore.NewStorageError("multipart upload", obj.Key, err)
		}
		return sum, nil
	})
}

func (s *Store) MultipartFinalize(ctx context.Context, obj *objstore.Object, token string, parts ...*objstore.FilePart) *future.Value[future.Unit] {
	return future.GoVoid(func() error {
		prefix, err := s.sessionPrefix(token, obj.Key)
		if err != nil {
			return err
		}
		if err := s.requireSession(ctx, prefix, token); err != nil {
			return err
		}

		if err := objstore.ValidatePartList(parts); err != nil {
			return err
		}

		// Validate every staged part against its declared hash before
		// touching the final object.
		for _, part := range parts {
			partKey := path.Join(prefix, objstore.PartFileName(part.Number))
			info, err := s.client.StatObject(ctx, s.bucket, partKey, minio.StatObjectOptions{})
			if err != nil {
				if isNoSuchKey(err) {
					return objstore.NewPartNotUploadedError(part.Number)
				}
				return objstore.NewStorageError("multipart finalize", obj.Key, err)
			}
			if info.UserMetadata[userMetaHash] != part.Hash {
				return objstore.NewHashMismatchError(part.Number)
			}
		}

		// Concatenate in part-number order through a pipe so the final
		// object is written in one upload. Closing body on every exit
		// unblocks the producer if the upload fails midway.
		body := streamParts(func(n int) (io.ReadCloser, error) {
			partKey := path.Join(prefix, objstore.PartFileName(n))
			return s.client.GetObject(ctx, s.bucket, partKey, minio.GetObjectOptions{})
		}, parts)
		defer body.Close()

		ct := obj.ContentType()
		if ct == "" {
			ct = objstore.InferContentType(obj.Key, objstore.DefaultContentType)
		}
		if _, err := s.client.PutObject(ctx, s.bucket, s.key(obj.Key), body, -1, minio.PutObjectOptions{
			ContentType: ct,
		}); err != nil {
			return objstore.NewStorageError("multipart finalize", obj.Key, err)
		}

		return s.removeSession(ctx, token)
	})
}

// streamParts feeds the sources returned by open, in part-number order,
// through a pipe. The producer stops as soon as the consumer closes the
// returned reader, so an aborted upload cannot strand the goroutine or
// leave part streams open.
func streamParts(open func(n int) (io.ReadCloser, error), parts []*objstore.FilePart) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		for _, part := range parts {
			src, err := open(part.Number)
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			_, err = io.Copy(pw, src)
			_ = src.Close()
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}
		}
		_ = pw.Close()
	}()
	return pr
}

func (s *Store) MultipartAbort(ctx context.Context, obj *objstore.Object, token string) *future.Value[future.Unit] {
	return future.GoVoid(func() error {
		return s.removeSession(ctx, token)
	})
}

// requireSession checks the session marker; an unknown or aborted token
// behaves as never initialized.
func (s *Store) requireSession(ctx context.Context, prefix, token string) error {
	_, err := s.client.StatObject(ctx, s.bucket, path.Join(prefix, sessionMarker), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return objstore.NewNotInitializedError(token)
		}
		return objstore.NewStorageError("multipart", token, err)
	}
	return nil
}

// removeSession deletes everything staged under the token. Removing an
// absent session is a no-op, which makes abort idempotent.
func (s *Store) removeSession(ctx context.Context, token string) error {
	tokenPrefix := path.Join(s.multipartPrefix, token) + "/"

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    tokenPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return objstore.NewStorageError("multipart abort", token, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
			return objstore.NewStorageError("multipart abort", token, err)
		}
	}
	return nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
