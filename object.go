package objstore

// MetaContentType is the metadata key carrying an object's content type.
const MetaContentType = "contentType"

// Object is a named blob with metadata, the unit stored and retrieved.
//
// Data is consumed exactly once on write and is nil once consumed. Objects
// returned from Get hold a private buffer that never aliases caller data.
type Object struct {
	Key      string
	Data     *ByteSource
	Metadata map[string]string
}

// NewObject constructs an Object for the given key and data. Data may be
// nil for operations that only need the key (Has, Delete, MultipartInit).
func NewObject(key string, data *ByteSource) *Object {
	return &Object{
		Key:      key,
		Data:     data,
		Metadata: make(map[string]string),
	}
}

// ContentType returns the content type carried in the metadata, or "".
func (o *Object) ContentType() string {
	if o.Metadata == nil {
		return ""
	}
	return o.Metadata[MetaContentType]
}

// SetContentType records the content type in the metadata.
func (o *Object) SetContentType(ct string) {
	if o.Metadata == nil {
		o.Metadata = make(map[string]string)
	}
	o.Metadata[MetaContentType] = ct
}

// FilePart is one numbered chunk of a multipart upload.
//
// Number is 1-based and strictly increasing across one finalize call. Data
// is present while uploading and nil when only referencing a stored part.
// Hash is the hex content hash computed by the engine at upload time; it is
// required at finalize.
type FilePart struct {
	Number int
	Data   *ByteSource
	Hash   string
}
