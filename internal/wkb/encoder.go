// Package wkb encodes flat coordinate sequences as little-endian EWKB.
package wkb

import (
	"encoding/binary"
	"errors"
	"math"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPoint      = 1
	wkbLineString = 2
	wkbPolygon    = 3

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// ErrTooFewPoints is returned for linestrings with fewer than two points
// and rings with fewer than four.
var ErrTooFewPoints = errors.New("wkb: too few points")

// Encoder encodes geometries to EWKB. The returned slices alias an
// internal buffer that the next call overwrites.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder for srid with a pre-allocated buffer.
func NewEncoder(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// Point encodes one x, y position.
func (e *Encoder) Point(x, y float64) []byte {
	e.header(wkbPoint)
	e.appendFloat64(x)
	e.appendFloat64(y)
	return e.buf
}

// LineString encodes a flat x1, y1, x2, y2, ... sequence.
func (e *Encoder) LineString(coords []float64) ([]byte, error) {
	n := len(coords) / 2
	if n < 2 {
		return nil, ErrTooFewPoints
	}
	e.header(wkbLineString)
	e.appendUint32(uint32(n))
	e.appendPoints(coords)
	return e.buf, nil
}

// Polygon encodes a single-ring polygon from a flat sequence. The ring is
// closed by repeating the first point when needed.
func (e *Encoder) Polygon(ring []float64) ([]byte, error) {
	closed := IsClosed(ring)
	n := len(ring) / 2
	if !closed {
		n++
	}
	if n < 4 {
		return nil, ErrTooFewPoints
	}

	e.header(wkbPolygon)
	e.appendUint32(1)
	e.appendUint32(uint32(n))
	e.appendPoints(ring)
	if !closed {
		e.appendFloat64(ring[0])
		e.appendFloat64(ring[1])
	}
	return e.buf, nil
}

// IsClosed reports whether a flat sequence ends where it starts.
func IsClosed(coords []float64) bool {
	n := len(coords)
	return n >= 4 && coords[0] == coords[n-2] && coords[1] == coords[n-1]
}

func (e *Encoder) header(kind uint32) {
	e.buf = append(e.buf[:0], 0x01) // little-endian
	e.appendUint32(kind | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) appendPoints(coords []float64) {
	for i := 0; i+1 < len(coords); i += 2 {
		e.appendFloat64(coords[i])
		e.appendFloat64(coords[i+1])
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
