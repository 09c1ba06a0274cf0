package model

import (
	"errors"
)

// ErrorKind classifies run failures.
type ErrorKind string

const (
	// KindMalformedRecord is a transaction missing a required field. It is
	// only an error when the run is configured to abort on such records.
	KindMalformedRecord ErrorKind = "malformed_record"
	// KindSourceRead means the transaction stream cannot be decoded further.
	KindSourceRead ErrorKind = "source_read"
	// KindReferenceData means a country list or the blacklist could not be loaded.
	KindReferenceData ErrorKind = "reference_data"
	// KindSinkWrite means an output could not be opened or written.
	KindSinkWrite ErrorKind = "sink_write"
)

// Error tags an underlying error with its kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError wraps err as a failure of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Op
	}
	return string(e.Kind) + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err (or any error in its chain) is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
