// Package hugearray provides flat arrays of fixed-size numbers that can grow
// beyond what is comfortable to keep in a single Go slice. Elements live on
// the heap in pages, in a window of a seekable stream, or in a memory-mapped
// file. Callers select the backing at construction and use the Array
// interface afterwards.
package hugearray

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrClosed is reported by arrays used after Close.
	ErrClosed = errors.New("hugearray: array is closed")
	// ErrWindowExceeded is returned by writes that reach past the end of a
	// capped Window.
	ErrWindowExceeded = errors.New("hugearray: write exceeds window")
)

// Element is the set of element types an Array can hold.
type Element interface {
	int32 | uint32 | int64 | uint64 | float32 | float64
}

// Array is a resizable flat array addressed by int64 index.
//
// Get and Set panic when the index is outside [0, Length()), the same way
// slice indexing does. Backings that do I/O cannot return an error from Get
// or Set; the first such error is kept and reported by Err, and Get returns
// the zero value from then on.
//
// Resize keeps the elements below min(old, new). Elements exposed by growing
// are always zero.
type Array[T Element] interface {
	Get(i int64) T
	Set(i int64, v T)
	Length() int64
	Resize(n int64) error
	Err() error
	Close() error
}

// Size returns the encoded size of one element in bytes.
func Size[T Element]() int {
	var zero T
	switch any(zero).(type) {
	case int32, uint32, float32:
		return 4
	}
	return 8
}

// put writes v little-endian into b.
func put[T Element](b []byte, v T) {
	switch x := any(v).(type) {
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(b, x)
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(b, x)
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	}
}

// get reads a little-endian element from b.
func get[T Element](b []byte) T {
	var v T
	switch p := any(&v).(type) {
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b)
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return v
}

func checkIndex(i, n int64) {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("hugearray: index %d out of range [0:%d]", i, n))
	}
}

// Copy resizes dst to the length of src and copies every element.
func Copy[T Element](dst, src Array[T]) error {
	n := src.Length()
	if err := dst.Resize(n); err != nil {
		return fmt.Errorf("failed to resize destination: %w", err)
	}
	for i := int64(0); i < n; i++ {
		dst.Set(i, src.Get(i))
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}
	if err := dst.Err(); err != nil {
		return fmt.Errorf("failed to write destination: %w", err)
	}
	return nil
}
