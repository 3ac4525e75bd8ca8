package objstore

import (
	"context"

	"github.com/hupe1980/objstore/future"
)

// Store is the core object-storage contract.
//
// Every operation returns a *future.Value; failures are rejected futures,
// never panics across the API boundary. Implementations must be safe for
// concurrent use.
type Store interface {
	// URL derives the location of an object. Pure computation, no I/O.
	URL(key string) string

	// Has reports whether an object exists under key.
	Has(ctx context.Context, key string) *future.Value[bool]

	// Get retrieves the object stored under key. The returned object's
	// data is a private copy. Fails with ErrNotFound for absent keys.
	Get(ctx context.Context, key string) *future.Value[*Object]

	// Put stores obj, consuming its data. Overwrites are atomic to
	// readers. Fails with ErrBadData if the data is absent or consumed.
	Put(ctx context.Context, obj *Object) *future.Value[future.Unit]

	// Delete removes the object under key. Removing an absent key is a
	// no-op.
	Delete(ctx context.Context, key string) *future.Value[future.Unit]
}

// MultipartStore extends Store with the multipart-upload protocol:
// init (obtain a token), upload per chunk (obtain a content hash per
// chunk), finalize with the ordered (number, hash) list, or abort to
// discard the session.
type MultipartStore interface {
	Store

	// MultipartInit starts an upload session for obj's key and returns
	// an opaque token scoping the session to that key.
	MultipartInit(ctx context.Context, obj *Object) *future.Value[string]

	// MultipartUpload stores one part, consuming its data, and returns
	// the hex content hash computed while writing. Uploading the same
	// part number again replaces the part.
	MultipartUpload(ctx context.Context, obj *Object, token string, part *FilePart) *future.Value[string]

	// MultipartFinalize validates the given parts against what was
	// uploaded and assembles them, in part-number order, into the final
	// object. Validation failures leave the final object untouched and
	// the session intact.
	MultipartFinalize(ctx context.Context, obj *Object, token string, parts ...*FilePart) *future.Value[future.Unit]

	// MultipartAbort discards the session and everything uploaded under
	// it. Aborting an unknown or already-aborted token is a no-op.
	MultipartAbort(ctx context.Context, obj *Object, token string) *future.Value[future.Unit]
}
