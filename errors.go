package annbuf

import (
	"errors"
	"fmt"
)

var (
	ErrLocked        = errors.New("buffer is locked")
	ErrNotLocked     = errors.New("buffer is not locked")
	ErrNilStore      = errors.New("nil data store")
	ErrInvalidConfig = errors.New("invalid buffer configuration")
	ErrInvalidRange  = errors.New("range index out of bounds")
	ErrRangeOverflow = errors.New("bucket transitions exceed configured range count")
	ErrShortDst      = errors.New("destination shorter than filled length")
)

// BufError wraps a sentinel with the operation that tripped it.
type BufError struct {
	Op    string
	Cause error
}

func (e *BufError) Error() string {
	return fmt.Sprintf("annbuf %s: %v", e.Op, e.Cause)
}

func (e *BufError) Unwrap() error {
	return e.Cause
}

func wrapOp(op string, cause error) *BufError {
	return &BufError{Op: op, Cause: cause}
}
