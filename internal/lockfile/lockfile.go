//go:build unix

package lockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// ErrContended is returned when a non-blocking lock attempt finds the file
// already locked by another holder.
var ErrContended = errors.New("file locked by another process")

// File is an open file holding an advisory lock. Unlock releases the lock
// and closes the file.
type File struct {
	*os.File
}

// TouchAndChmod creates the file if absent and sets its permissions to
// exactly mode, bypassing the process umask.
func TouchAndChmod(path string, mode fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

// OpenShared opens path read-only and acquires a non-blocking shared lock.
// A missing file surfaces as fs.ErrNotExist; a contended lock as
// ErrContended.
func OpenShared(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if err := flock(f, unix.LOCK_SH|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{File: f}, nil
}

// OpenExclusive sets permissions on the file (creating it if absent), opens
// it read-write, and acquires a non-blocking exclusive lock. The file is
// not truncated; that is the caller's decision once the lock is held.
func OpenExclusive(path string, mode fs.FileMode) (*File, error) {
	if err := TouchAndChmod(path, mode); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, mode)
	if err != nil {
		return nil, err
	}
	if err := flock(f, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{File: f}, nil
}

// Unlock releases the advisory lock and closes the file.
func (f *File) Unlock() error {
	flockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if flockErr != nil {
		return fmt.Errorf("unlock %s: %w", f.Name(), flockErr)
	}
	return closeErr
}

func flock(f *os.File, how int) error {
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%s: %w", f.Name(), ErrContended)
		}
		return fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	return nil
}
