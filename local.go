package objstore

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/objstore/future"
	"github.com/hupe1980/objstore/internal/lockfile"
)

// finalizeConcurrency bounds the fan-out of part hash verification.
const finalizeConcurrency = 4

// FSStore implements MultipartStore on the local filesystem.
//
// Finalized objects live at root/<key>; in-flight parts live at
// multipartRoot/<token>/<hash(key)>/part<NNNNN>. The two trees must be
// disjoint. All state is on disk; the only synchronization is per-file
// advisory locking, so independent processes sharing the roots cooperate
// correctly. Lock acquisition never blocks: contention surfaces as an
// ErrStorage immediately.
type FSStore struct {
	root          string
	multipartRoot string
	opts          options
}

var _ MultipartStore = (*FSStore)(nil)

// NewFSStore creates a filesystem store with the given object root and
// multipart staging root.
func NewFSStore(root, multipartRoot string, opt ...Option) *FSStore {
	return &FSStore{
		root:          root,
		multipartRoot: multipartRoot,
		opts:          applyOptions(opt...),
	}
}

// URL returns the file URL of the object under key. No I/O.
func (s *FSStore) URL(key string) string {
	return "file://" + path.Join(filepath.ToSlash(s.root), key)
}

// Has reports whether root/<key> is a regular file.
func (s *FSStore) Has(_ context.Context, key string) *future.Value[bool] {
	return future.Do(func() (bool, error) {
		fi, err := os.Stat(s.objectPath(key))
		return err == nil && fi.Mode().IsRegular(), nil
	})
}

func (s *FSStore) Get(_ context.Context, key string) *future.Value[*Object] {
	return future.Do(func() (*Object, error) { return s.get(key) })
}

func (s *FSStore) Put(_ context.Context, obj *Object) *future.Value[future.Unit] {
	return future.DoVoid(func() error { return s.put(obj) })
}

func (s *FSStore) Delete(_ context.Context, key string) *future.Value[future.Unit] {
	return future.DoVoid(func() error { return s.delete(key) })
}

func (s *FSStore) MultipartInit(_ context.Context, obj *Object) *future.Value[string] {
	return future.Do(func() (string, error) { return s.multipartInit(obj) })
}

func (s *FSStore) MultipartUpload(_ context.Context, obj *Object, token string, part *FilePart) *future.Value[string] {
	return future.Do(func() (string, error) { return s.multipartUpload(obj, token, part) })
}

func (s *FSStore) MultipartFinalize(ctx context.Context, obj *Object, token string, parts ...*FilePart) *future.Value[future.Unit] {
	return future.DoVoid(func() error { return s.multipartFinalize(ctx, obj, token, parts) })
}

func (s *FSStore) MultipartAbort(_ context.Context, obj *Object, token string) *future.Value[future.Unit] {
	return future.DoVoid(func() error { return s.multipartAbort(obj, token) })
}

func (s *FSStore) objectPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// sessionDir keys the staging subdirectory by hash(key), not by token, so
// the tree stays self-descriptive per key and a token is only usable for
// the key it was initialized for.
func (s *FSStore) sessionDir(token, key string) (string, error) {
	keyHash, err := s.opts.hash.Sum([]byte(key))
	if err != nil {
		return "", storageErr("hash", key, err)
	}
	return filepath.Join(s.multipartRoot, token, keyHash), nil
}

func (s *FSStore) get(key string) (*Object, error) {
	p := s.objectPath(key)

	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, &NotFoundError{Key: key}
	}

	f, err := lockfile.OpenShared(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Key: key}
		}
		// Contention is a storage error, never "not found".
		return nil, storageErr("get", p, err)
	}

	data, readErr := io.ReadAll(f)
	if err := f.Unlock(); err != nil && readErr == nil {
		readErr = err
	}
	if readErr != nil {
		return nil, storageErr("get", p, readErr)
	}

	obj := NewObject(key, BytesSource(data))
	obj.SetContentType(InferContentType(key, s.opts.contentType))
	return obj, nil
}

func (s *FSStore) put(obj *Object) error {
	if obj.Data == nil {
		return badDataf("object %s has no data", obj.Key)
	}
	rc, err := obj.Data.Detach()
	if err != nil {
		return err
	}
	defer rc.Close()

	p := s.objectPath(obj.Key)
	if err := os.MkdirAll(filepath.Dir(p), s.opts.dirMode); err != nil {
		return storageErr("mkdir", filepath.Dir(p), err)
	}
	return s.lockedWrite(p, nil, rc)
}

func (s *FSStore) delete(key string) error {
	p := s.objectPath(key)

	fi, err := os.Lstat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return storageErr("delete", p, err)
	}
	if !fi.Mode().IsRegular() {
		return storageErr("delete", p, errors.New("not a regular file"))
	}
	if err := os.Remove(p); err != nil {
		return storageErr("delete", p, err)
	}
	return nil
}

func (s *FSStore) multipartInit(obj *Object) (string, error) {
	token := uuid.NewString()

	dir, err := s.sessionDir(token, obj.Key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, s.opts.dirMode); err != nil {
		return "", storageErr("multipart init", dir, err)
	}

	s.opts.logger.Debug("multipart session initialized", "key", obj.Key, "token", token)
	return token, nil
}

func (s *FSStore) multipartUpload(obj *Object, token string, part *FilePart) (string, error) {
	if part.Data != nil {
		defer part.Data.Close()
	}

	if err := ValidatePartNumber(part.Number); err != nil {
		return "", err
	}

	dir, err := s.sessionDir(token, obj.Key)
	if err != nil {
		return "", err
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return "", NewNotInitializedError(token)
	}

	if part.Data == nil {
		return "", badDataf("part %d has no data", part.Number)
	}
	rc, err := part.Data.Detach()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	// The hash is computed from the rewound, still-locked handle so it
	// reflects exactly what landed on disk.
	var sum string
	p := filepath.Join(dir, PartFileName(part.Number))
	err = s.lockedWrite(p, func(f *lockfile.File) error {
		h, err := s.opts.hash.New()
		if err != nil {
			return err
		}
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		sum = hex.EncodeToString(h.Sum(nil))
		return nil
	}, rc)
	if err != nil {
		return "", err
	}
	return sum, nil
}

func (s *FSStore) multipartFinalize(ctx context.Context, obj *Object, token string, parts []*FilePart) error {
	dir, err := s.sessionDir(token, obj.Key)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return NewNotInitializedError(token)
	}

	// Ordering violations are rejected before any data is touched.
	if err := ValidatePartList(parts); err != nil {
		return err
	}
	for _, part := range parts {
		fi, err := os.Stat(filepath.Join(dir, PartFileName(part.Number)))
		if err != nil || !fi.Mode().IsRegular() {
			return NewPartNotUploadedError(part.Number)
		}
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(finalizeConcurrency)
	for _, part := range parts {
		g.Go(func() error { return s.verifyPart(dir, part) })
	}
	if err := g.Wait(); err != nil {
		// Uploaded parts stay intact so finalize can be retried or
		// the session aborted.
		return err
	}

	sources := make([]io.Reader, 0, len(parts))
	closers := make([]io.Closer, 0, len(parts))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, part := range parts {
		f, err := os.Open(filepath.Join(dir, PartFileName(part.Number)))
		if err != nil {
			return storageErr("multipart finalize", dir, err)
		}
		sources = append(sources, f)
		closers = append(closers, f)
	}

	finalPath := s.objectPath(obj.Key)
	if err := os.MkdirAll(filepath.Dir(finalPath), s.opts.dirMode); err != nil {
		return storageErr("mkdir", filepath.Dir(finalPath), err)
	}
	if err := s.lockedWrite(finalPath, nil, sources...); err != nil {
		return err
	}

	tokenDir := filepath.Join(s.multipartRoot, token)
	if err := os.RemoveAll(tokenDir); err != nil {
		return storageErr("multipart finalize", tokenDir, err)
	}

	s.opts.logger.Debug("multipart session finalized", "key", obj.Key, "token", token, "parts", len(parts))
	return nil
}

func (s *FSStore) verifyPart(dir string, part *FilePart) error {
	p := filepath.Join(dir, PartFileName(part.Number))

	f, err := lockfile.OpenShared(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewPartNotUploadedError(part.Number)
		}
		return storageErr("multipart finalize", p, err)
	}

	h, err := s.opts.hash.New()
	if err != nil {
		_ = f.Unlock()
		return storageErr("hash", p, err)
	}
	_, copyErr := io.Copy(h, f)
	if err := f.Unlock(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return storageErr("multipart finalize", p, copyErr)
	}

	if hex.EncodeToString(h.Sum(nil)) != part.Hash {
		return NewHashMismatchError(part.Number)
	}
	return nil
}

func (s *FSStore) multipartAbort(obj *Object, token string) error {
	tokenDir := filepath.Join(s.multipartRoot, token)
	if err := os.RemoveAll(tokenDir); err != nil {
		return storageErr("multipart abort", tokenDir, err)
	}
	s.opts.logger.Debug("multipart session aborted", "key", obj.Key, "token", token)
	return nil
}

// lockedWrite writes sources to p under an exclusive, non-blocking lock:
// permissions are set before opening, truncation happens only once the
// lock is held, and fn (if given) runs against the rewound, still-locked
// handle. Shared-lock attempts during the write fail outright, so no
// reader observes a half-written file.
func (s *FSStore) lockedWrite(p string, fn func(*lockfile.File) error, sources ...io.Reader) error {
	f, err := lockfile.OpenExclusive(p, s.opts.fileMode)
	if err != nil {
		return storageErr("write", p, err)
	}

	werr := func() error {
		if err := f.Truncate(0); err != nil {
			return err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		for _, src := range sources {
			if _, err := io.Copy(f, src); err != nil {
				return err
			}
		}
		if fn != nil {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			if err := fn(f); err != nil {
				return err
			}
		}
		return f.Sync()
	}()

	if err := f.Unlock(); err != nil && werr == nil {
		werr = err
	}
	if werr != nil {
		return storageErr("write", p, werr)
	}
	return nil
}
