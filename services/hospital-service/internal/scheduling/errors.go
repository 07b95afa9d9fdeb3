package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedInput matches every *MalformedInputError.
	ErrMalformedInput = errors.New("malformed input")
	ErrDoctorNotFound = errors.New("doctor not found")
)

type MalformedInputError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed %s %q", e.Field, e.Value)
}

func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }

func (e *MalformedInputError) Unwrap() error { return e.Err }

// LookupError means the appointment store could not answer, so availability
// is unknown rather than empty.
type LookupError struct {
	Op  string
	Err error
}

func (e *LookupError) Error() string {
	return "lookup " + e.Op + ": " + e.Err.Error()
}

func (e *LookupError) Unwrap() error { return e.Err }
