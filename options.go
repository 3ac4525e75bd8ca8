package objstore

import "io/fs"

// DefaultContentType is used when no content type can be inferred from the
// object key.
const DefaultContentType = "application/octet-stream"

type options struct {
	hash        HashAlgorithm
	contentType string
	fileMode    fs.FileMode
	dirMode     fs.FileMode
	logger      *Logger
}

// Option configures an engine at construction time. Hash algorithm and
// default content type are injected here, not read from process-wide
// state, so tests stay deterministic.
type Option func(*options)

func defaultOptions() options {
	return options{
		hash:        HashSHA256,
		contentType: DefaultContentType,
		fileMode:    0o644,
		dirMode:     0o755,
		logger:      NoopLogger(),
	}
}

// WithHashAlgorithm selects the content-hash function. Default: sha256.
func WithHashAlgorithm(a HashAlgorithm) Option {
	return func(o *options) {
		o.hash = a
	}
}

// WithDefaultContentType sets the content type reported for objects whose
// key does not imply one.
func WithDefaultContentType(ct string) Option {
	return func(o *options) {
		if ct == "" {
			ct = DefaultContentType
		}
		o.contentType = ct
	}
}

// WithFileMode sets the permission bits applied to object and part files.
// Default: 0o644.
func WithFileMode(mode fs.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithDirMode sets the permission bits applied to created directories.
// Default: 0o755.
func WithDirMode(mode fs.FileMode) Option {
	return func(o *options) {
		o.dirMode = mode
	}
}

// WithLogger injects a logger. Default: NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

func applyOptions(opt ...Option) options {
	o := defaultOptions()
	for _, fn := range opt {
		fn(&o)
	}
	return o
}
