// Package errors wraps pkg/errors and adds error codes so callers can tell an
// input problem from a parse problem or a failed store call without string
// matching.
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Code classifies an error. See Is.
type Code string

const (
	// ErrUncoded is used for coded errors created without a useful code.
	ErrUncoded Code = "Uncoded"

	// ErrInput marks a source file that is missing or unreadable. It is
	// raised before any document is written.
	ErrInput Code = "InputError"

	// ErrParse marks a line whose width does not match the header, a numeric
	// field that is neither a number nor the sentinel token, or an identifier
	// without a digit suffix.
	ErrParse Code = "ParseError"

	// ErrStore marks a failed bulk write against the document store.
	ErrStore Code = "StoreError"

	// ErrConfig marks an invalid pipeline or job configuration.
	ErrConfig Code = "ConfigError"
)

// New returns a coded error with a stack trace.
func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, errors.Errorf(format, args...).Error())
}

// WithCode attaches code to an existing error. The original error stays
// reachable through errors.Unwrap so standard library checks such as
// os.ErrNotExist keep working.
func WithCode(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
		cause:   err,
	})
}

// Is reports whether err (or anything it wraps) carries the target code.
func Is(err error, target Code) bool {
	return stderrors.Is(err, codedError{Code: target})
}

// CodeOf returns the first code found in the chain of err, or "" when err
// is not coded.
func CodeOf(err error) Code {
	var ce codedError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Join is errors.Join from the standard library, re-exported so callers
// only import one errors package.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// codedError is the fundamental type used by this package to provide coded
// errors.
type codedError struct {
	Code    Code
	Message string
	cause   error
}

func (ce codedError) Error() string {
	if ce.cause != nil {
		return ce.Message + ": " + ce.cause.Error()
	}
	return ce.Message
}

func (ce codedError) Unwrap() error { return ce.cause }

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}
