package driver

import (
	"errors"
	"fmt"
)

// Code classifies a failure crossing the driver boundary.
type Code string

const (
	ElementNotFound    Code = "ElementNotFound"
	NotInteractable    Code = "NotInteractable"
	AssertionTimeout   Code = "AssertionTimeout"
	NavigationTimeout  Code = "NavigationTimeout"
	ArtifactWriteError Code = "ArtifactWriteError"
	DriverUnavailable  Code = "DriverUnavailable"
)

// Sentinels for errors.Is. A *Error matches the sentinel carrying its Code.
var (
	ErrElementNotFound    = &Error{Code: ElementNotFound}
	ErrNotInteractable    = &Error{Code: NotInteractable}
	ErrAssertionTimeout   = &Error{Code: AssertionTimeout}
	ErrNavigationTimeout  = &Error{Code: NavigationTimeout}
	ErrArtifactWriteError = &Error{Code: ArtifactWriteError}
	ErrDriverUnavailable  = &Error{Code: DriverUnavailable}
)

// Error is the typed failure returned by every Driver method.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// NewError wraps err with a taxonomy code and the operation that failed.
func NewError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Code == e.Code
}

// CodeOf returns the taxonomy code carried by err, or "" when err is untyped.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
