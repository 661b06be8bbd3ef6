package remote

import (
	"errors"
	"fmt"
)

// Kind classifies why a call to a remote service failed.
type Kind string

const (
	KindTransport Kind = "transport"
	KindRejected  Kind = "rejected"
	KindMalformed Kind = "malformed"
)

// Error is returned by every remote client operation.
type Error struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transport(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Err: err}
}

func Rejected(op string, status int, err error) *Error {
	return &Error{Op: op, Kind: KindRejected, Status: status, Err: err}
}

func Malformed(op string, err error) *Error {
	return &Error{Op: op, Kind: KindMalformed, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
