package hugearray

import (
	"errors"
	"fmt"
	"io"
)

// streamPageSize is the number of bytes a Stream caches around the last
// accessed element.
const streamPageSize = 64 * 1024

// Stream is an Array stored in a seekable stream, usually a Window over a
// file. The first Length() elements are whatever the stream holds at
// construction; elements added by Resize are written out as zeros.
//
// Reads and writes go through a single cached page. Dirty pages are written
// back when another page is touched, on Resize, Flush and Close.
type Stream[T Element] struct {
	rws    io.ReadWriteSeeker
	owned  bool
	size   int64
	length int64

	page      []byte
	pageStart int64
	dirty     bool

	err    error
	closed bool
}

// NewStream returns a Stream of n elements over rws. Closing the Stream
// leaves rws open.
func NewStream[T Element](rws io.ReadWriteSeeker, n int64) *Stream[T] {
	return &Stream[T]{
		rws:       rws,
		size:      int64(Size[T]()),
		length:    n,
		page:      make([]byte, streamPageSize),
		pageStart: -1,
	}
}

// NewOwnedStream is like NewStream, but Close also closes rws when it
// implements io.Closer.
func NewOwnedStream[T Element](rws io.ReadWriteSeeker, n int64) *Stream[T] {
	s := NewStream[T](rws, n)
	s.owned = true
	return s
}

func (s *Stream[T]) Get(i int64) T {
	checkIndex(i, s.length)
	b := s.at(i)
	if b == nil {
		var zero T
		return zero
	}
	return get[T](b)
}

func (s *Stream[T]) Set(i int64, v T) {
	checkIndex(i, s.length)
	b := s.at(i)
	if b == nil {
		return
	}
	put(b, v)
	s.dirty = true
}

// at returns the cached bytes of element i, loading its page if needed. It
// returns nil once the stream has failed.
func (s *Stream[T]) at(i int64) []byte {
	if s.err != nil {
		return nil
	}
	off := i * s.size
	if s.pageStart < 0 || off < s.pageStart || off+s.size > s.pageStart+streamPageSize {
		if err := s.flushPage(); err != nil {
			s.err = err
			return nil
		}
		if err := s.loadPage(off - off%streamPageSize); err != nil {
			s.err = err
			return nil
		}
	}
	rel := off - s.pageStart
	return s.page[rel : rel+s.size]
}

// pageLen is the number of bytes of the page at start that belong to the
// array.
func (s *Stream[T]) pageLen(start int64) int64 {
	return min(streamPageSize, s.length*s.size-start)
}

func (s *Stream[T]) loadPage(start int64) error {
	n := s.pageLen(start)
	if _, err := s.rws.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek stream: %w", err)
	}
	read, err := io.ReadFull(s.rws, s.page[:n])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	// a stream shorter than the array reads as zeros
	clear(s.page[read:])
	s.pageStart = start
	s.dirty = false
	return nil
}

func (s *Stream[T]) flushPage() error {
	if !s.dirty || s.pageStart < 0 {
		return nil
	}
	n := s.pageLen(s.pageStart)
	if _, err := s.rws.Seek(s.pageStart, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek stream: %w", err)
	}
	if _, err := s.rws.Write(s.page[:n]); err != nil {
		return fmt.Errorf("failed to write stream: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Stream[T]) Length() int64 {
	return s.length
}

// Resize writes zeros for every element added. Growing a Stream over a
// capped Window past its limit fails with ErrWindowExceeded and leaves the
// length unchanged.
func (s *Stream[T]) Resize(n int64) error {
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}
	if n < 0 {
		n = 0
	}
	if err := s.flushPage(); err != nil {
		s.err = err
		return err
	}
	s.pageStart = -1

	if n > s.length {
		if err := s.zero(s.length*s.size, n*s.size); err != nil {
			return err
		}
	}
	s.length = n
	return nil
}

func (s *Stream[T]) zero(from, to int64) error {
	if _, err := s.rws.Seek(from, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek stream: %w", err)
	}
	zeros := make([]byte, min(streamPageSize, to-from))
	for from < to {
		chunk := min(int64(len(zeros)), to-from)
		if _, err := s.rws.Write(zeros[:chunk]); err != nil {
			return fmt.Errorf("failed to grow stream: %w", err)
		}
		from += chunk
	}
	return nil
}

// Flush writes the cached page back to the stream.
func (s *Stream[T]) Flush() error {
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}
	if err := s.flushPage(); err != nil {
		s.err = err
		return err
	}
	return nil
}

func (s *Stream[T]) Err() error {
	if s.closed {
		return ErrClosed
	}
	return s.err
}

// Close flushes pending writes. The stream is closed only when it was
// handed over with NewOwnedStream.
func (s *Stream[T]) Close() error {
	if s.closed {
		return nil
	}
	err := s.err
	if err == nil {
		err = s.flushPage()
	}
	if s.owned {
		if c, ok := s.rws.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	}
	s.closed = true
	s.length = 0
	s.page = nil
	return err
}
