package pbf

import (
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"
)

// DefaultBlockSize is the number of objects a Target packs into one block.
const DefaultBlockSize = 8000

// DefaultWritingProgram is recorded in headers written by a Target.
const DefaultWritingProgram = "osmhuge"

type options struct {
	logger *zap.Logger

	// source
	ignoreNodes     bool
	ignoreWays      bool
	ignoreRelations bool

	// target
	blockSize        int
	compress         bool
	compressionLevel int
	encoder          EncoderOptions
	writingProgram   string
	headerSource     string
	bounds           *osm.Bounds
	replication      Replication
}

// Replication locates a file in a replication stream. It is carried in the
// header block.
type Replication struct {
	Timestamp time.Time
	Sequence  int64
	BaseURL   string
}

func defaultOptions() options {
	return options{
		logger:           zap.NewNop(),
		blockSize:        DefaultBlockSize,
		compress:         true,
		compressionLevel: 6,
		writingProgram:   DefaultWritingProgram,
	}
}

// Option configures a Source or a Target. Options that only apply to one of
// them are ignored by the other.
type Option func(*options)

// WithLogger sets the logger used for debug output. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// IgnoreNodes makes a Source skip node groups without decoding them.
func IgnoreNodes() Option {
	return func(o *options) { o.ignoreNodes = true }
}

// IgnoreWays makes a Source skip way groups without decoding them.
func IgnoreWays() Option {
	return func(o *options) { o.ignoreWays = true }
}

// IgnoreRelations makes a Source skip relation groups without decoding them.
func IgnoreRelations() Option {
	return func(o *options) { o.ignoreRelations = true }
}

// WithBlockSize sets how many objects a Target buffers per block.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.blockSize = n
		}
	}
}

// WithCompression toggles zlib compression of data blobs.
func WithCompression(enabled bool) Option {
	return func(o *options) { o.compress = enabled }
}

// WithCompressionLevel sets the zlib level used when compression is enabled.
func WithCompressionLevel(level int) Option {
	return func(o *options) { o.compressionLevel = level }
}

// WithDenseNodes writes nodes as DenseNodes groups.
func WithDenseNodes(enabled bool) Option {
	return func(o *options) { o.encoder.Dense = enabled }
}

// WithGranularity sets the coordinate granularity in nanodegrees.
func WithGranularity(g int32) Option {
	return func(o *options) { o.encoder.Granularity = g }
}

// WithDateGranularity sets the timestamp granularity in milliseconds.
func WithDateGranularity(g int32) Option {
	return func(o *options) { o.encoder.DateGranularity = g }
}

// WithOffsets sets the latitude and longitude offsets in nanodegrees.
func WithOffsets(lat, lon int64) Option {
	return func(o *options) {
		o.encoder.LatOffset = lat
		o.encoder.LonOffset = lon
	}
}

// WithWritingProgram sets the writingprogram header field.
func WithWritingProgram(name string) Option {
	return func(o *options) { o.writingProgram = name }
}

// WithHeaderSource sets the source header field, e.g. the data origin.
func WithHeaderSource(source string) Option {
	return func(o *options) { o.headerSource = source }
}

// WithReplication stores replication timestamp, sequence and base URL in
// the header.
func WithReplication(r Replication) Option {
	return func(o *options) { o.replication = r }
}

// WithBounds stores a bounding box in the header.
func WithBounds(b *osm.Bounds) Option {
	return func(o *options) { o.bounds = b }
}

// groupFilter maps the ignore options onto the group kinds to decode.
func (o *options) groupFilter() GroupFilter {
	if !o.ignoreNodes && !o.ignoreWays && !o.ignoreRelations {
		return nil
	}
	return func(kind GroupKind) bool {
		switch kind {
		case GroupNodes, GroupDense:
			return !o.ignoreNodes
		case GroupWays:
			return !o.ignoreWays
		case GroupRelations:
			return !o.ignoreRelations
		}
		return false
	}
}
