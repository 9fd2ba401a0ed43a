package coordindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/wegman-software/osmhuge/internal/hugearray"
)

// headerSize is the two int64 lengths leading a serialized index.
const headerSize = 16

// Serialize trims the index and writes it to w:
//
//	int64   index length
//	int64   coordinate pairs
//	uint64  index[index length]
//	float32 coordinates[pairs*2]
//
// all little-endian. Only the used part of the coordinate array is written;
// dead slots are included unless Compress ran first. Serialize returns the
// number of bytes written.
func (x *Index) Serialize(w io.Writer) (int64, error) {
	if err := x.Trim(); err != nil {
		return 0, err
	}

	indexLen := x.index.Length()
	pairs := x.nextIdx

	bw := bufio.NewWriterSize(w, 1<<16)
	cw := &countingWriter{w: bw}
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(indexLen))
	cw.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(pairs))
	cw.Write(buf[:])

	for i := int64(0); i < indexLen && cw.err == nil; i++ {
		binary.LittleEndian.PutUint64(buf[:], x.index.Get(i))
		cw.Write(buf[:])
	}
	for i := int64(0); i < pairs*2 && cw.err == nil; i++ {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(x.coords.Get(i)))
		cw.Write(buf[:4])
	}

	if cw.err == nil {
		cw.err = bw.Flush()
	}
	if cw.err != nil {
		return cw.n, fmt.Errorf("failed to serialize index: %w", cw.err)
	}
	if err := x.err(); err != nil {
		return cw.n, fmt.Errorf("failed to read index: %w", err)
	}

	x.opts.logger.Debug("serialized coordinate index",
		zap.Int64("entries", indexLen),
		zap.Int64("pairs", pairs),
		zap.Int64("bytes", cw.n))
	return cw.n, nil
}

// countingWriter remembers the first error so the write loops stay flat.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
}

// Deserialize reads an index written by Serialize, starting at the current
// position of rws.
//
// With copyData set, both arrays are copied into arrays from the configured
// allocator and rws is no longer used once Deserialize returns. Otherwise
// the index reads through Windows over rws, which must stay open until the
// index is closed. Such an index can be updated in place but cannot grow.
// rws is never closed by the index.
func Deserialize(rws io.ReadWriteSeeker, copyData bool, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	start, err := rws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to locate index: %w", err)
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(rws, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	indexLen := int64(binary.LittleEndian.Uint64(header[0:8]))
	pairs := int64(binary.LittleEndian.Uint64(header[8:16]))
	if indexLen < 0 || pairs < 0 {
		return nil, fmt.Errorf("corrupt index header: %d entries, %d pairs", indexLen, pairs)
	}

	indexBytes := indexLen * 8
	coordBytes := pairs * 2 * 4
	end, err := rws.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size index: %w", err)
	}
	if want := start + headerSize + indexBytes + coordBytes; end < want {
		return nil, fmt.Errorf("truncated index: %d bytes, want %d", end-start, want-start)
	}

	indexView := hugearray.NewStream[uint64](hugearray.NewWindow(rws, start+headerSize, indexBytes), indexLen)
	coordView := hugearray.NewStream[float32](hugearray.NewWindow(rws, start+headerSize+indexBytes, coordBytes), pairs*2)

	x := &Index{
		index:   indexView,
		coords:  coordView,
		nextIdx: pairs,
		maxID:   indexLen - 1,
		opts:    o,
	}
	if !copyData {
		return x, nil
	}

	if err := x.copyTo(o.allocator); err != nil {
		return nil, errors.Join(err, indexView.Close(), coordView.Close())
	}
	if err := errors.Join(indexView.Close(), coordView.Close()); err != nil {
		x.Close()
		return nil, err
	}
	return x, nil
}

// copyTo replaces both arrays with copies from a.
func (x *Index) copyTo(a Allocator) error {
	index, err := a.NewUint64(0)
	if err != nil {
		return fmt.Errorf("failed to allocate index array: %w", err)
	}
	if err := hugearray.Copy(index, x.index); err != nil {
		index.Close()
		return fmt.Errorf("failed to copy index array: %w", err)
	}

	coords, err := a.NewFloat32(0)
	if err != nil {
		index.Close()
		return fmt.Errorf("failed to allocate coordinate array: %w", err)
	}
	if err := hugearray.Copy(coords, x.coords); err != nil {
		index.Close()
		coords.Close()
		return fmt.Errorf("failed to copy coordinate array: %w", err)
	}

	x.index, x.coords = index, coords
	return nil
}
