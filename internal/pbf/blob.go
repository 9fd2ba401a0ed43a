package pbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Blob types of the OSM PBF file format.
const (
	BlobTypeHeader = "OSMHeader"
	BlobTypeData   = "OSMData"
)

// The PBF format caps the BlobHeader at 64 KiB and a blob at 32 MiB.
const (
	maxBlobHeaderSize = 64 * 1024
	maxBlobSize       = 32 * 1024 * 1024
)

const (
	fieldBlobHeaderType      = 1
	fieldBlobHeaderIndexData = 2
	fieldBlobHeaderDataSize  = 3

	fieldBlobRaw      = 1
	fieldBlobRawSize  = 2
	fieldBlobZlibData = 3
	fieldBlobLzmaData = 4
	fieldBlobBzip2    = 5
	fieldBlobLz4Data  = 6
	fieldBlobZstdData = 7
)

// blobReader reads framed blobs and inflates their payload.
type blobReader struct {
	r       io.Reader
	buf     []byte
	inflate io.ReadCloser
}

func newBlobReader(r io.Reader) *blobReader {
	return &blobReader{r: r}
}

// next reads one frame. It returns io.EOF only when the stream ends cleanly
// on a frame boundary. The returned payload is owned by the caller.
func (br *blobReader) next() (kind string, payload []byte, size int64, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(br.r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil, 0, io.EOF
		}
		return "", nil, 0, newFormatError("blob header size", fmt.Errorf("%w: %v", ErrTruncated, err))
	}
	headerSize := binary.BigEndian.Uint32(lenBuf[:])
	if headerSize >= maxBlobHeaderSize {
		return "", nil, 0, newFormatError("blob header", fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize))
	}

	header, err := br.read(int(headerSize))
	if err != nil {
		return "", nil, 0, newFormatError("blob header", err)
	}
	var dataSize int64 = -1
	err = forEachField(header, func(f field) error {
		switch f.num {
		case fieldBlobHeaderType:
			kind = string(f.bytes)
		case fieldBlobHeaderDataSize:
			dataSize = int64(toInt32(f.varint))
		}
		return nil
	})
	if err != nil {
		return "", nil, 0, newFormatError("blob header", err)
	}
	if dataSize < 0 || dataSize > maxBlobSize {
		return "", nil, 0, newFormatError("blob", fmt.Errorf("%w: datasize %d", ErrBlobTooLarge, dataSize))
	}

	data, err := br.read(int(dataSize))
	if err != nil {
		return "", nil, 0, newFormatError("blob", err)
	}
	payload, err = br.decompress(data)
	if err != nil {
		return "", nil, 0, newFormatError("blob", err)
	}
	return kind, payload, 4 + int64(headerSize) + dataSize, nil
}

func (br *blobReader) read(n int) ([]byte, error) {
	if cap(br.buf) < n {
		br.buf = make([]byte, n)
	}
	br.buf = br.buf[:n]
	if _, err := io.ReadFull(br.r, br.buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return br.buf, nil
}

func (br *blobReader) decompress(data []byte) ([]byte, error) {
	var (
		raw         []byte
		zdata       []byte
		rawSize     int64 = -1
		unsupported string
	)
	err := forEachField(data, func(f field) error {
		switch f.num {
		case fieldBlobRaw:
			raw = f.bytes
		case fieldBlobRawSize:
			rawSize = int64(toInt32(f.varint))
		case fieldBlobZlibData:
			zdata = f.bytes
		case fieldBlobLzmaData:
			unsupported = "lzma"
		case fieldBlobBzip2:
			unsupported = "bzip2"
		case fieldBlobLz4Data:
			unsupported = "lz4"
		case fieldBlobZstdData:
			unsupported = "zstd"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case raw != nil:
		return bytes.Clone(raw), nil
	case zdata != nil:
		if rawSize < 0 || rawSize > maxBlobSize {
			return nil, fmt.Errorf("%w: raw_size %d", ErrBlobTooLarge, rawSize)
		}
		if err := br.resetInflate(bytes.NewReader(zdata)); err != nil {
			return nil, err
		}
		out := make([]byte, rawSize)
		if _, err := io.ReadFull(br.inflate, out); err != nil {
			return nil, fmt.Errorf("%w: inflate: %v", ErrTruncated, err)
		}
		return out, nil
	case unsupported != "":
		return nil, fmt.Errorf("%w: %s", ErrUnknownCompression, unsupported)
	}
	// a blob without any payload field carries an empty block
	return []byte{}, nil
}

func (br *blobReader) resetInflate(r io.Reader) error {
	if br.inflate == nil {
		zr, err := zlib.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: zlib: %v", ErrTruncated, err)
		}
		br.inflate = zr
		return nil
	}
	if err := br.inflate.(zlib.Resetter).Reset(r, nil); err != nil {
		return fmt.Errorf("%w: zlib: %v", ErrTruncated, err)
	}
	return nil
}

func (br *blobReader) close() error {
	if br.inflate != nil {
		return br.inflate.Close()
	}
	return nil
}

// blobWriter frames payloads as blobs, deflating them when enabled.
type blobWriter struct {
	w        io.Writer
	compress bool
	deflate  *zlib.Writer
	zbuf     bytes.Buffer
	frame    []byte
}

func newBlobWriter(w io.Writer, compress bool, level int) (*blobWriter, error) {
	bw := &blobWriter{w: w, compress: compress}
	if compress {
		zw, err := zlib.NewWriterLevel(&bw.zbuf, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib writer: %w", err)
		}
		bw.deflate = zw
	}
	return bw, nil
}

// write emits one frame and returns the number of bytes written.
func (bw *blobWriter) write(kind string, payload []byte) (int64, error) {
	if len(payload) > maxBlobSize {
		return 0, newFormatError("blob", fmt.Errorf("%w: %d bytes uncompressed", ErrBlobTooLarge, len(payload)))
	}

	var blob []byte
	if bw.compress {
		bw.zbuf.Reset()
		bw.deflate.Reset(&bw.zbuf)
		if _, err := bw.deflate.Write(payload); err != nil {
			return 0, fmt.Errorf("failed to compress blob: %w", err)
		}
		if err := bw.deflate.Close(); err != nil {
			return 0, fmt.Errorf("failed to close zlib writer: %w", err)
		}
		blob = appendVarintField(blob, fieldBlobRawSize, uint64(len(payload)))
		blob = appendBytesField(blob, fieldBlobZlibData, bw.zbuf.Bytes())
	} else {
		blob = appendBytesField(blob, fieldBlobRaw, payload)
		blob = appendVarintField(blob, fieldBlobRawSize, uint64(len(payload)))
	}

	var header []byte
	header = appendStringField(header, fieldBlobHeaderType, kind)
	header = appendVarintField(header, fieldBlobHeaderDataSize, uint64(len(blob)))

	bw.frame = bw.frame[:0]
	bw.frame = binary.BigEndian.AppendUint32(bw.frame, uint32(len(header)))
	bw.frame = append(bw.frame, header...)
	bw.frame = append(bw.frame, blob...)

	n, err := bw.w.Write(bw.frame)
	if err != nil {
		return int64(n), fmt.Errorf("failed to write blob: %w", err)
	}
	return int64(n), nil
}
