package pbf

import (
	"math"
	"time"
)

// Block-wide defaults from the OSM PBF format.
const (
	DefaultGranularity     = 100
	DefaultDateGranularity = 1000

	// coordinates are stored as integer nanodegrees before scaling
	nanoDegree = 1e-9
)

// EncodeCoordinate converts a latitude or longitude into the scaled integer
// stored in a block with the given offset (nanodegrees) and granularity.
func EncodeCoordinate(v float64, offset int64, granularity int32) int64 {
	return (int64(math.Round(v/nanoDegree)) - offset) / int64(granularity)
}

// DecodeCoordinate is the inverse of EncodeCoordinate.
func DecodeCoordinate(raw int64, offset int64, granularity int32) float64 {
	return nanoDegree * float64(offset+int64(granularity)*raw)
}

// EncodeTimestamp converts t into units of dateGranularity milliseconds.
// The zero time is written as 0 (the epoch).
func EncodeTimestamp(t time.Time, dateGranularity int32) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli() / int64(dateGranularity)
}

// DecodeTimestamp is the inverse of EncodeTimestamp. Raw 0 maps back to the
// zero time so that objects without metadata round trip unchanged.
func DecodeTimestamp(raw int64, dateGranularity int32) time.Time {
	if raw == 0 {
		return time.Time{}
	}
	return time.UnixMilli(raw * int64(dateGranularity)).UTC()
}

// deltaEncoder turns absolute values into successive differences.
type deltaEncoder struct {
	prev int64
}

func (d *deltaEncoder) next(v int64) int64 {
	delta := v - d.prev
	d.prev = v
	return delta
}

// deltaDecoder accumulates differences back into absolute values. Values
// must be fed strictly in order.
type deltaDecoder struct {
	acc int64
}

func (d *deltaDecoder) next(delta int64) int64 {
	d.acc += delta
	return d.acc
}
