package graphdb

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	logger          *zap.Logger
	sync            bool
	compactInterval time.Duration
	compactMinBytes int64
	cacheSize       int
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		sync:      true,
		cacheSize: 1024,
	}
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. The store logs under the name "graphdb".
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSync controls whether every commit is fsynced before Commit returns.
// It is on by default.
func WithSync(sync bool) Option {
	return func(o *options) { o.sync = sync }
}

// WithCompaction starts a background compactor that rewrites the commit log
// every interval once it has grown past minBytes. A zero interval disables
// it.
func WithCompaction(interval time.Duration, minBytes int64) Option {
	return func(o *options) {
		o.compactInterval = interval
		o.compactMinBytes = minBytes
	}
}

// WithLookupCache sets how many index lookups are cached between commits.
// Zero disables the cache.
func WithLookupCache(size int) Option {
	return func(o *options) { o.cacheSize = size }
}
