package larch

import "larch/internal/base"

// Options configures tree behavior.
type Options struct {
	leafMaxSize     int
	internalMaxSize int
	comparator      Comparator
	logger          Logger
}

// DefaultOptions returns the default tree configuration: nodes sized
// to page capacity, raw byte ordering, no logging.
func DefaultOptions() Options {
	return Options{
		leafMaxSize:     base.LeafCapacity,
		internalMaxSize: base.InternalCapacity,
		comparator:      base.DefaultComparator,
		logger:          DiscardLogger{},
	}
}

// Option configures tree options using the functional options pattern.
type Option func(*Options)

// WithLeafMaxSize caps leaf node fanout. A leaf splits when an insert
// fills it to n entries. Mostly useful for tests that need small
// trees.
func WithLeafMaxSize(n int) Option {
	return func(opts *Options) {
		opts.leafMaxSize = n
	}
}

// WithInternalMaxSize caps internal node fanout (children per node).
func WithInternalMaxSize(n int) Option {
	return func(opts *Options) {
		opts.internalMaxSize = n
	}
}

// WithComparator overrides the key ordering. All trees sharing keys
// must agree on the comparator.
func WithComparator(cmp Comparator) Option {
	return func(opts *Options) {
		opts.comparator = cmp
	}
}

// WithLogger sets the tree's logger.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}
