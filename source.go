package objstore

import (
	"bytes"
	"io"
	"sync"
)

// ByteSource is a sequential, read-once stream with explicit ownership
// transfer. An engine takes ownership via Detach when writing; after that
// the source is consumed and unusable to the caller.
type ByteSource struct {
	mu sync.Mutex
	rc io.ReadCloser
}

// NewByteSource wraps rc in a ByteSource. The source owns rc until it is
// detached or closed.
func NewByteSource(rc io.ReadCloser) *ByteSource {
	return &ByteSource{rc: rc}
}

// BytesSource returns a ByteSource reading the given byte slice. The slice
// must not be mutated until the source is consumed.
func BytesSource(data []byte) *ByteSource {
	return NewByteSource(io.NopCloser(bytes.NewReader(data)))
}

// Detach moves the underlying reader out of the source. The caller becomes
// responsible for closing it. A second Detach fails with ErrBadData.
func (s *ByteSource) Detach() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rc == nil {
		return nil, badDataf("byte source already consumed")
	}
	rc := s.rc
	s.rc = nil
	return rc, nil
}

// Consumed reports whether the source has been detached or closed.
func (s *ByteSource) Consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rc == nil
}

// Close releases the underlying reader if it has not been detached.
func (s *ByteSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rc == nil {
		return nil
	}
	rc := s.rc
	s.rc = nil
	return rc.Close()
}
