package pbf

import (
	"errors"
	"fmt"
)

var (
	// ErrNotResettable is returned by Source.Reset when the underlying reader
	// cannot seek. Callers should consult CanReset first.
	ErrNotResettable = errors.New("pbf: source is not resettable")

	// ErrClosed is returned when a Target is used after Close.
	ErrClosed = errors.New("pbf: target is closed")

	ErrStringIndex        = errors.New("string table index out of range")
	ErrMissingStringTable = errors.New("missing string table")
	ErrDenseLength        = errors.New("dense node arrays have mismatched lengths")
	ErrKeysVals           = errors.New("unterminated or odd keys_vals sequence")
	ErrTagLength          = errors.New("keys and vals have mismatched lengths")
	ErrMemberLength       = errors.New("relation member arrays have mismatched lengths")
	ErrMemberType         = errors.New("unknown relation member type")
	ErrTruncated          = errors.New("truncated data")
	ErrHeaderTooLarge     = errors.New("blob header exceeds 64 KiB")
	ErrBlobTooLarge       = errors.New("blob exceeds 32 MiB")
	ErrUnknownCompression = errors.New("unsupported blob compression")
	ErrUnsupportedFeature = errors.New("unsupported required feature")
	ErrUnexpectedBlob     = errors.New("unexpected blob type")
)

// FormatError reports malformed PBF input. The binary layout carries no
// redundancy, so a FormatError is never recovered from.
type FormatError struct {
	Op  string
	Err error
}

func newFormatError(op string, err error) *FormatError {
	return &FormatError{Op: op, Err: err}
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("pbf: %s: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
