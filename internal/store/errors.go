package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the store matches exactly one of
// these via errors.Is.
var (
	// ErrOpenFailed marks failures while opening or migrating the database.
	// The store is unusable after one of these; nothing was left half-open.
	ErrOpenFailed = errors.New("open failed")

	// ErrQueryFailed marks statement preparation, bind or execution
	// failures on an open store.
	ErrQueryFailed = errors.New("query failed")
)

// Error is the concrete error type returned by store operations. It carries
// the operation name, the kind sentinel, and the underlying driver error.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches against the error's kind, so errors.Is(err, ErrQueryFailed)
// holds for any failed statement without unwrapping the driver error.
func (e *Error) Is(target error) bool { return target == e.Kind }

func openErr(op string, err error) error {
	return &Error{Op: op, Kind: ErrOpenFailed, Err: err}
}

func queryErr(op string, err error) error {
	return &Error{Op: op, Kind: ErrQueryFailed, Err: err}
}
