// Package errorList collects the failures of independent operations, such as
// queries of a batch, into a single error.
package errorList

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooManyErrors is added to the ErrorList by the Trim method.
var ErrTooManyErrors = errors.New("too many errors")

// ErrorList wraps multiple errors as a single error.
type ErrorList []error

func (errs ErrorList) Error() string {
	switch len(errs) {
	case 0:
		return "<no errors>"
	case 1:
		return errs[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", errs[0].Error(), len(errs)-1)
	}
}

// Unwrap makes errors.Is and errors.As look through every error on the list.
func (errs ErrorList) Unwrap() []error {
	return errs
}

// Details returns all error messages, one per line.
func (errs ErrorList) Details() string {
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, err.Error())
	}
	return strings.Join(lines, "\n")
}

// ErrOrNil returns nil if ErrorList is empty, or the error otherwise.
func (errs ErrorList) ErrOrNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Append an error to the list. Nested lists are flattened and nil errors are
// dropped.
func (errs ErrorList) Append(err error) ErrorList {
	if err == nil {
		return errs
	}
	if nested, ok := err.(ErrorList); ok {
		return append(errs, nested...)
	}
	return append(errs, err)
}

// Trim the list to at most limit errors followed by ErrTooManyErrors.
func (errs ErrorList) Trim(limit int) ErrorList {
	if len(errs) <= limit {
		return errs
	}
	return append(errs[:limit:limit], ErrTooManyErrors)
}
