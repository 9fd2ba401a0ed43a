package pbf

import (
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/osm"
	"go.uber.org/zap"
)

// Source reads OSM objects from a PBF stream one at a time.
//
//	src, err := pbf.NewSource(f, pbf.IgnoreRelations())
//	...
//	for src.MoveNext() {
//		obj := src.Current()
//	}
//	if err := src.Err(); err != nil {
//		...
//	}
//
// A Source does not own its reader; Close only releases decoder state.
type Source struct {
	r      io.Reader
	seeker io.Seeker
	start  int64

	opts   options
	filter GroupFilter
	blobs  *blobReader
	header *HeaderBlock

	block   *PrimitiveBlock
	decoder *blockDecoder
	group   int
	pending osm.Objects
	current osm.Object
	err     error
	done    bool

	bytesRead int64
	blocks    int64
}

// NewSource reads the header blob of r and returns a Source positioned
// before the first object. When r is an io.Seeker the Source can be Reset.
func NewSource(r io.Reader, opts ...Option) (*Source, error) {
	s := &Source{r: r, opts: defaultOptions()}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.filter = s.opts.groupFilter()

	if seeker, ok := r.(io.Seeker); ok {
		start, err := seeker.Seek(0, io.SeekCurrent)
		if err == nil {
			s.seeker = seeker
			s.start = start
		}
	}

	s.blobs = newBlobReader(r)
	if err := s.readHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) readHeader() error {
	kind, payload, n, err := s.blobs.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return newFormatError("header", fmt.Errorf("%w: empty stream", ErrTruncated))
		}
		return err
	}
	if kind != BlobTypeHeader {
		return newFormatError("header", fmt.Errorf("%w: %q, want %q", ErrUnexpectedBlob, kind, BlobTypeHeader))
	}
	h, err := UnmarshalHeaderBlock(payload)
	if err != nil {
		return err
	}
	s.header = h
	s.bytesRead = n
	return nil
}

// Header returns the decoded OSMHeader blob.
func (s *Source) Header() *HeaderBlock {
	return s.header
}

// MoveNext advances to the next object of any type that is not ignored.
func (s *Source) MoveNext() bool {
	return s.advance("")
}

// MoveNextNode advances to the next node. Objects of other types in between
// are consumed; groups holding only other types are never converted into
// objects.
func (s *Source) MoveNextNode() bool {
	return s.advance(osm.TypeNode)
}

// MoveNextWay advances to the next way, consuming everything before it.
func (s *Source) MoveNextWay() bool {
	return s.advance(osm.TypeWay)
}

// MoveNextRelation advances to the next relation, consuming everything
// before it.
func (s *Source) MoveNextRelation() bool {
	return s.advance(osm.TypeRelation)
}

func (s *Source) advance(want osm.Type) bool {
	s.current = nil
	for {
		for len(s.pending) > 0 {
			obj := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			if want == "" || objectType(obj) == want {
				s.current = obj
				return true
			}
		}
		if s.err != nil {
			return false
		}

		if s.block != nil && s.group < len(s.block.Groups) {
			g := s.block.Groups[s.group]
			s.group++
			if !groupHolds(g.Kind(), want) {
				continue
			}
			objects, err := s.decoder.group(nil, g)
			if err != nil {
				s.err = err
				return false
			}
			s.pending = objects
			continue
		}

		if s.done || !s.loadBlock() {
			return false
		}
	}
}

func groupHolds(kind GroupKind, want osm.Type) bool {
	switch want {
	case "":
		return true
	case osm.TypeNode:
		return kind == GroupNodes || kind == GroupDense
	case osm.TypeWay:
		return kind == GroupWays
	case osm.TypeRelation:
		return kind == GroupRelations
	}
	return false
}

// loadBlock parses the next data blob. Groups of ignored types are dropped
// while parsing.
func (s *Source) loadBlock() bool {
	s.block, s.decoder, s.group = nil, nil, 0
	for {
		kind, payload, n, err := s.blobs.next()
		if errors.Is(err, io.EOF) {
			s.done = true
			s.opts.logger.Debug("pbf source exhausted",
				zap.Int64("blocks", s.blocks),
				zap.Int64("bytes", s.bytesRead))
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		s.bytesRead += n

		if kind != BlobTypeData {
			s.opts.logger.Debug("skipping blob", zap.String("type", kind))
			continue
		}
		s.blocks++

		block, err := UnmarshalPrimitiveBlock(payload, s.filter)
		if err != nil {
			s.err = err
			return false
		}
		s.block = block
		s.decoder = newBlockDecoder(block)
		return true
	}
}

// Current returns the object the last successful move stopped at.
func (s *Source) Current() osm.Object {
	return s.current
}

// Err returns the first error encountered. Reaching the end of the stream
// is not an error.
func (s *Source) Err() error {
	return s.err
}

// BytesRead returns the number of stream bytes consumed so far.
func (s *Source) BytesRead() int64 {
	return s.bytesRead
}

// CanReset reports whether the underlying reader can be rewound.
func (s *Source) CanReset() bool {
	return s.seeker != nil
}

// Reset rewinds to the first object. It returns ErrNotResettable when the
// reader is not seekable.
func (s *Source) Reset() error {
	if s.seeker == nil {
		return ErrNotResettable
	}
	if _, err := s.seeker.Seek(s.start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind source: %w", err)
	}

	s.block, s.decoder, s.group = nil, nil, 0
	s.pending = nil
	s.current = nil
	s.err = nil
	s.done = false
	s.blocks = 0
	s.blobs.r = s.r
	if err := s.readHeader(); err != nil {
		s.err = err
		return err
	}
	s.opts.logger.Debug("pbf source reset")
	return nil
}

// Close releases the decompressor. The reader is left open.
func (s *Source) Close() error {
	s.block, s.decoder = nil, nil
	s.pending = nil
	s.current = nil
	s.done = true
	return s.blobs.close()
}
