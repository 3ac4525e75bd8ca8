package objstore

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/objstore/future"
)

// MemoryStore implements MultipartStore over in-process maps. It is the
// reference implementation of the protocol contract, independent of
// filesystem quirks, and doubles as a test stand-in. Thread-safe; every
// operation is an atomic critical section.
//
// Put and Get copy content into fresh private buffers so returned objects
// never alias caller data, mirroring the filesystem engine's copy
// semantics.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]memObject
	sessions map[string]*memSession
	opts     options
}

var _ MultipartStore = (*MemoryStore)(nil)

type memObject struct {
	data        []byte
	contentType string
}

type memSession struct {
	key   string
	parts map[int]memPart
}

// memPart remembers the hash verified at upload time alongside the bytes.
type memPart struct {
	hash string
	data []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opt ...Option) *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]memObject),
		sessions: make(map[string]*memSession),
		opts:     applyOptions(opt...),
	}
}

// URL derives a memory scheme location for key. No I/O.
func (s *MemoryStore) URL(key string) string {
	return "memory://" + key
}

func (s *MemoryStore) Has(_ context.Context, key string) *future.Value[bool] {
	return future.Do(func() (bool, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		_, ok := s.objects[key]
		return ok, nil
	})
}

func (s *MemoryStore) Get(_ context.Context, key string) *future.Value[*Object] {
	return future.Do(func() (*Object, error) { return s.get(key) })
}

func (s *MemoryStore) Put(_ context.Context, obj *Object) *future.Value[future.Unit] {
	return future.DoVoid(func() error { return s.put(obj) })
}

func (s *MemoryStore) Delete(_ context.Context, key string) *future.Value[future.Unit] {
	return future.DoVoid(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.objects, key)
		return nil
	})
}

func (s *MemoryStore) MultipartInit(_ context.Context, obj *Object) *future.Value[string] {
	return future.Do(func() (string, error) {
		token := uuid.NewString()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.sessions[token] = &memSession{
			key:   obj.Key,
			parts: make(map[int]memPart),
		}

		s.opts.logger.Debug("multipart session initialized", "key", obj.Key, "token", token)
		return token, nil
	})
}

func (s *MemoryStore) MultipartUpload(_ context.Context, obj *Object, token string, part *FilePart) *future.Value[string] {
	return future.Do(func() (string, error) { return s.multipartUpload(obj, token, part) })
}

func (s *MemoryStore) MultipartFinalize(_ context.Context, obj *Object, token string, parts ...*FilePart) *future.Value[future.Unit] {
	return future.DoVoid(func() error { return s.multipartFinalize(obj, token, parts) })
}

func (s *MemoryStore) MultipartAbort(_ context.Context, obj *Object, token string) *future.Value[future.Unit] {
	return future.DoVoid(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.sessions, token)
		s.opts.logger.Debug("multipart session aborted", "key", obj.Key, "token", token)
		return nil
	})
}

func (s *MemoryStore) get(key string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.objects[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}

	// Private copy so the stored bytes cannot be mutated through the
	// returned object.
	copied := make([]byte, len(stored.data))
	copy(copied, stored.data)

	obj := NewObject(key, BytesSource(copied))
	obj.SetContentType(stored.contentType)
	return obj, nil
}

func (s *MemoryStore) put(obj *Object) error {
	if obj.Data == nil {
		return badDataf("object %s has no data", obj.Key)
	}
	rc, err := obj.Data.Detach()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return storageErr("put", obj.Key, err)
	}

	ct := obj.ContentType()
	if ct == "" {
		ct = InferContentType(obj.Key, s.opts.contentType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.Key] = memObject{data: data, contentType: ct}
	return nil
}

func (s *MemoryStore) multipartUpload(obj *Object, token string, part *FilePart) (string, error) {
	if part.Data != nil {
		defer part.Data.Close()
	}

	if err := ValidatePartNumber(part.Number); err != nil {
		return "", err
	}

	s.mu.Lock()
	sess, ok := s.sessions[token]
	s.mu.Unlock()
	if !ok || sess.key != obj.Key {
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

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", storageErr("multipart upload", obj.Key, err)
	}
	sum, err := s.opts.hash.Sum(data)
	if err != nil {
		return "", storageErr("hash", obj.Key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.parts[part.Number] = memPart{hash: sum, data: data}
	} else {
		return "", NewNotInitializedError(token)
	}
	return sum, nil
}

func (s *MemoryStore) multipartFinalize(obj *Object, token string, parts []*FilePart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || sess.key != obj.Key {
		return NewNotInitializedError(token)
	}

	// All validation happens before any mutation.
	if err := ValidatePartList(parts); err != nil {
		return err
	}
	for _, part := range parts {
		stored, ok := sess.parts[part.Number]
		if !ok {
			return NewPartNotUploadedError(part.Number)
		}
		if stored.hash != part.Hash {
			return NewHashMismatchError(part.Number)
		}
	}

	var data []byte
	for _, part := range parts {
		data = append(data, sess.parts[part.Number].data...)
	}

	ct := obj.ContentType()
	if ct == "" {
		ct = InferContentType(obj.Key, s.opts.contentType)
	}

	s.objects[obj.Key] = memObject{data: data, contentType: ct}
	delete(s.sessions, token)

	s.opts.logger.Debug("multipart session finalized", "key", obj.Key, "token", token, "parts", len(parts))
	return nil
}
