package pbf

import (
	"fmt"
	"io"

	"github.com/paulmach/osm"
	"go.uber.org/zap"
)

// Target writes OSM objects to a PBF stream. Objects are buffered and
// encoded one block at a time; the header blob is written before the first
// data blob. A Target does not own its writer.
type Target struct {
	opts    options
	blobs   *blobWriter
	encoder *BlockEncoder

	buffer        osm.Objects
	headerWritten bool
	closed        bool

	bytesWritten int64
	blocks       int64
}

// NewTarget returns a Target writing to w.
func NewTarget(w io.Writer, opts ...Option) (*Target, error) {
	t := &Target{opts: defaultOptions()}
	for _, opt := range opts {
		opt(&t.opts)
	}

	blobs, err := newBlobWriter(w, t.opts.compress, t.opts.compressionLevel)
	if err != nil {
		return nil, err
	}
	t.blobs = blobs
	t.encoder = NewBlockEncoder(t.opts.encoder)
	t.buffer = make(osm.Objects, 0, t.opts.blockSize)
	return t, nil
}

// AddNode buffers a node.
func (t *Target) AddNode(n *osm.Node) error {
	return t.Add(n)
}

// AddWay buffers a way.
func (t *Target) AddWay(w *osm.Way) error {
	return t.Add(w)
}

// AddRelation buffers a relation.
func (t *Target) AddRelation(r *osm.Relation) error {
	return t.Add(r)
}

// Add buffers any node, way or relation and writes a block once the buffer
// holds the configured block size.
func (t *Target) Add(o osm.Object) error {
	if t.closed {
		return ErrClosed
	}
	if objectType(o) == "" {
		return fmt.Errorf("cannot write object of type %T", o)
	}
	t.buffer = append(t.buffer, o)
	if len(t.buffer) >= t.opts.blockSize {
		return t.Flush()
	}
	return nil
}

// Flush encodes and writes the buffered objects as one block.
func (t *Target) Flush() error {
	if t.closed {
		return ErrClosed
	}
	if err := t.writeHeader(); err != nil {
		return err
	}
	if len(t.buffer) == 0 {
		return nil
	}

	block, err := t.encoder.Encode(t.buffer)
	if err != nil {
		return fmt.Errorf("failed to encode block: %w", err)
	}
	n, err := t.blobs.write(BlobTypeData, block.Marshal(nil))
	t.bytesWritten += n
	if err != nil {
		return err
	}
	t.blocks++

	t.opts.logger.Debug("wrote pbf block",
		zap.Int("objects", len(t.buffer)),
		zap.Int("strings", len(block.StringTable)),
		zap.Int64("bytes", n))

	clear(t.buffer)
	t.buffer = t.buffer[:0]
	return nil
}

func (t *Target) writeHeader() error {
	if t.headerWritten {
		return nil
	}

	h := &HeaderBlock{
		Bounds:               t.opts.bounds,
		RequiredFeatures:     []string{FeatureSchema},
		WritingProgram:       t.opts.writingProgram,
		Source:               t.opts.headerSource,
		ReplicationTimestamp: t.opts.replication.Timestamp,
		ReplicationSequence:  t.opts.replication.Sequence,
		ReplicationBaseURL:   t.opts.replication.BaseURL,
	}
	if t.opts.encoder.Dense {
		h.RequiredFeatures = append(h.RequiredFeatures, FeatureDenseNodes)
	}

	n, err := t.blobs.write(BlobTypeHeader, h.Marshal(nil))
	t.bytesWritten += n
	if err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	t.headerWritten = true
	return nil
}

// BytesWritten returns the number of bytes written to the stream so far.
func (t *Target) BytesWritten() int64 {
	return t.bytesWritten
}

// Close writes the remaining buffered objects. The header is written even
// when no object was added so the output is always a valid file.
func (t *Target) Close() error {
	if t.closed {
		return nil
	}
	err := t.Flush()
	t.closed = true
	t.opts.logger.Debug("pbf target closed",
		zap.Int64("blocks", t.blocks),
		zap.Int64("bytes", t.bytesWritten))
	return err
}
