package hugearray

import (
	"errors"
	"fmt"
	"io"
)

// Window is a view of the region [offset, offset+limit) of a seekable
// stream. Positions are relative to offset. A negative limit leaves the
// region open-ended.
//
// Reads stop at the limit with io.EOF. Writes never touch bytes past the
// limit: the part that fits is written and ErrWindowExceeded is returned.
type Window struct {
	rws    io.ReadWriteSeeker
	offset int64
	limit  int64
	pos    int64
}

// NewWindow returns a Window over rws starting at offset.
func NewWindow(rws io.ReadWriteSeeker, offset, limit int64) *Window {
	return &Window{rws: rws, offset: offset, limit: limit}
}

// Limit returns the size of the window, or -1 when it is unbounded.
func (w *Window) Limit() int64 {
	if w.limit < 0 {
		return -1
	}
	return w.limit
}

// Offset returns the absolute start of the window in the underlying stream.
func (w *Window) Offset() int64 {
	return w.offset
}

func (w *Window) Read(p []byte) (int, error) {
	n, err := w.ReadAt(p, w.pos)
	w.pos += int64(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	if n > 0 && err == io.EOF {
		err = nil
	}
	return n, err
}

func (w *Window) Write(p []byte) (int, error) {
	n, err := w.WriteAt(p, w.pos)
	w.pos += int64(n)
	return n, err
}

func (w *Window) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = w.pos + offset
	case io.SeekEnd:
		if w.limit < 0 {
			end, err := w.rws.Seek(0, io.SeekEnd)
			if err != nil {
				return w.pos, err
			}
			abs = end - w.offset + offset
		} else {
			abs = w.limit + offset
		}
	default:
		return w.pos, fmt.Errorf("hugearray: invalid whence %d", whence)
	}
	if abs < 0 {
		return w.pos, errors.New("hugearray: negative window position")
	}
	w.pos = abs
	return abs, nil
}

// ReadAt reads from the window position off without moving the window's
// own position. The underlying stream position is changed.
func (w *Window) ReadAt(p []byte, off int64) (int, error) {
	var capped bool
	if w.limit >= 0 {
		if off >= w.limit {
			return 0, io.EOF
		}
		if rest := w.limit - off; int64(len(p)) > rest {
			p = p[:rest]
			capped = true
		}
	}
	if _, err := w.rws.Seek(w.offset+off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(w.rws, p)
	if err == nil && capped {
		err = io.EOF
	}
	return n, err
}

// WriteAt writes p at window position off without moving the window's own
// position.
func (w *Window) WriteAt(p []byte, off int64) (int, error) {
	var exceeded bool
	if w.limit >= 0 {
		if off >= w.limit {
			return 0, ErrWindowExceeded
		}
		if rest := w.limit - off; int64(len(p)) > rest {
			p = p[:rest]
			exceeded = true
		}
	}
	if _, err := w.rws.Seek(w.offset+off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := w.rws.Write(p)
	if err == nil && exceeded {
		err = ErrWindowExceeded
	}
	return n, err
}
