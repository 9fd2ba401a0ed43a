package hugearray

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

// Mmap is an Array backed by a memory-mapped file. Elements are stored in
// host byte order.
type Mmap[T Element] struct {
	file   *os.File
	region mmap.MMap
	data   []T
	length int64
	temp   bool
	closed bool
}

// NewMmap creates (or truncates) the file at path and maps n zeroed
// elements.
func NewMmap[T Element](path string, n int64) (*Mmap[T], error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create mmap file: %w", err)
	}
	return newMmap[T](f, n, false)
}

// NewTempMmap maps n zeroed elements in a new temporary file in dir. The
// file is removed on Close.
func NewTempMmap[T Element](dir string, n int64) (*Mmap[T], error) {
	f, err := os.CreateTemp(dir, "hugearray-*.bin")
	if err != nil {
		return nil, fmt.Errorf("failed to create mmap file: %w", err)
	}
	return newMmap[T](f, n, true)
}

// OpenMmap maps an existing file written by an Mmap of the same element
// type.
func OpenMmap[T Element](path string) (*Mmap[T], error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	size := int64(Size[T]())
	if info.Size()%size != 0 {
		f.Close()
		return nil, fmt.Errorf("mmap file %s: size %d is not a multiple of %d", path, info.Size(), size)
	}

	a := &Mmap[T]{file: f, length: info.Size() / size}
	if err := a.mapFile(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func newMmap[T Element](f *os.File, n int64, temp bool) (*Mmap[T], error) {
	if n < 0 {
		n = 0
	}
	a := &Mmap[T]{file: f, temp: temp}
	if err := a.truncate(n); err != nil {
		a.discard()
		return nil, err
	}
	if err := a.mapFile(); err != nil {
		a.discard()
		return nil, err
	}
	return a, nil
}

func (a *Mmap[T]) truncate(n int64) error {
	if err := a.file.Truncate(n * int64(Size[T]())); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}
	a.length = n
	return nil
}

// mapFile maps the first length elements. An empty array has no mapping.
func (a *Mmap[T]) mapFile() error {
	if a.length == 0 {
		a.region, a.data = nil, nil
		return nil
	}
	region, err := mmap.MapRegion(a.file, int(a.length*int64(Size[T]())), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	a.region = region
	a.data = unsafe.Slice((*T)(unsafe.Pointer(&region[0])), a.length)
	return nil
}

func (a *Mmap[T]) unmap() error {
	if a.region == nil {
		return nil
	}
	err := a.region.Unmap()
	a.region, a.data = nil, nil
	if err != nil {
		return fmt.Errorf("failed to unmap file: %w", err)
	}
	return nil
}

func (a *Mmap[T]) discard() {
	a.file.Close()
	if a.temp {
		os.Remove(a.file.Name())
	}
}

func (a *Mmap[T]) Get(i int64) T {
	checkIndex(i, a.length)
	return a.data[i]
}

func (a *Mmap[T]) Set(i int64, v T) {
	checkIndex(i, a.length)
	a.data[i] = v
}

func (a *Mmap[T]) Length() int64 {
	return a.length
}

// Resize flushes and unmaps the file, changes its size and maps it again.
// Growing the file zero-fills the new range.
func (a *Mmap[T]) Resize(n int64) error {
	if a.closed {
		return ErrClosed
	}
	if n < 0 {
		n = 0
	}
	if n == a.length {
		return nil
	}
	if err := a.Flush(); err != nil {
		return err
	}
	if err := a.unmap(); err != nil {
		return err
	}
	if err := a.truncate(n); err != nil {
		return errors.Join(err, a.mapFile())
	}
	return a.mapFile()
}

// Flush writes dirty pages back to the file.
func (a *Mmap[T]) Flush() error {
	if a.closed {
		return ErrClosed
	}
	if a.region == nil {
		return nil
	}
	if err := a.region.Flush(); err != nil {
		return fmt.Errorf("failed to flush mmap: %w", err)
	}
	return nil
}

// Path returns the name of the backing file.
func (a *Mmap[T]) Path() string {
	return a.file.Name()
}

func (a *Mmap[T]) Err() error {
	if a.closed {
		return ErrClosed
	}
	return nil
}

func (a *Mmap[T]) Close() error {
	if a.closed {
		return nil
	}
	err := errors.Join(a.Flush(), a.unmap(), a.file.Close())
	if a.temp {
		err = errors.Join(err, os.Remove(a.file.Name()))
	}
	a.closed = true
	a.length = 0
	return err
}
