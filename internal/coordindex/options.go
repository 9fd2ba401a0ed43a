package coordindex

import "go.uber.org/zap"

const (
	// DefaultEstimatedSize is the expected average collection length used
	// to pre-size the coordinate array.
	DefaultEstimatedSize = 5
	// DefaultGrowthChunk is the minimum number of floats the coordinate
	// array grows by.
	DefaultGrowthChunk = 1 << 20
)

type options struct {
	estimatedSize int64
	growthChunk   int64
	allocator     Allocator
	logger        *zap.Logger
}

func defaultOptions() options {
	return options{
		estimatedSize: DefaultEstimatedSize,
		growthChunk:   DefaultGrowthChunk,
		allocator:     MemoryAllocator{},
		logger:        zap.NewNop(),
	}
}

// Option configures an Index.
type Option func(*options)

// WithEstimatedSize sets the expected average number of coordinates per id.
func WithEstimatedSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.estimatedSize = n
		}
	}
}

// WithGrowthChunk sets the minimum growth step of the coordinate array, in
// floats.
func WithGrowthChunk(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.growthChunk = n
		}
	}
}

// WithAllocator selects where the arrays live.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.allocator = a
		}
	}
}

// WithLogger sets the logger for compaction and serialization output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
