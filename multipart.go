package objstore

import (
	"fmt"
	"mime"
	"path"
)

// MaxPartNumber bounds the 1-based part number of a multipart upload.
const MaxPartNumber = 100000

// ValidatePartNumber checks that n is within [1, MaxPartNumber].
func ValidatePartNumber(n int) error {
	if n < 1 || n > MaxPartNumber {
		return badDataf("part number %d out of range [1, %d]", n, MaxPartNumber)
	}
	return nil
}

// ValidatePartList enforces the finalize preconditions that need no I/O:
// part numbers in range and strictly increasing, hashes present. It runs
// before any data is touched so a violation leaves all state unchanged.
// Shared by every backend so the protocol behaves identically.
func ValidatePartList(parts []*FilePart) error {
	prev := 0
	for _, p := range parts {
		if err := ValidatePartNumber(p.Number); err != nil {
			return err
		}
		if p.Number <= prev {
			return badDataf("parts must be sorted monotonically by part number")
		}
		if p.Hash == "" {
			return badDataf("part %d has no hash", p.Number)
		}
		prev = p.Number
	}
	return nil
}

// PartFileName returns the staging name of a part: "part" plus the
// zero-based index, zero-padded to five digits.
func PartFileName(n int) string {
	return fmt.Sprintf("part%05d", n-1)
}

// NewNotInitializedError reports an upload or finalize against a token
// with no live session (unknown, aborted, or scoped to another key).
func NewNotInitializedError(token string) error {
	return badDataf("multipart upload not initialized: %s", token)
}

// NewPartNotUploadedError reports a finalize referencing a part number
// never uploaded in this session.
func NewPartNotUploadedError(n int) error {
	return badDataf("Part not uploaded: %d", n)
}

// NewHashMismatchError reports a finalize whose declared hash does not
// match what was stored at upload time.
func NewHashMismatchError(n int) error {
	return badDataf("Hash mismatch for part %d", n)
}

// InferContentType infers a content type from the key's extension,
// falling back to the given default.
func InferContentType(key, fallback string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return fallback
}
