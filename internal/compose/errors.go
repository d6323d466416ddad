package compose

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrorCode categorizes composition errors for logging and errors.Is checks.
type ErrorCode string

const (
	MalformedDocument     ErrorCode = "MalformedDocument"
	UnresolvableReference ErrorCode = "UnresolvableReference"
	CircularReference     ErrorCode = "CircularReference"
	TypeMismatch          ErrorCode = "TypeMismatch"
	EmptyTemplate         ErrorCode = "EmptyTemplate"
)

// Sentinel errors matched by (*Error).Is.
var (
	ErrMalformedDocument     = errors.New("malformed document")
	ErrUnresolvableReference = errors.New("unresolvable reference")
	ErrCircularReference     = errors.New("circular reference")
	ErrTypeMismatch          = errors.New("type mismatch")
	ErrEmptyTemplate         = errors.New("empty array template")
)

// Error is a structured composition error. Only MalformedDocument ever
// reaches a caller as a returned error; the other codes are logged as
// diagnostics and the build carries on.
type Error struct {
	Code     ErrorCode
	Message  string
	Location string // document or data file path
	Pointer  string // the $ref string or field name involved
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Location != "" {
		msg = fmt.Sprintf("%s: %s", e.Location, msg)
	}
	if e.Pointer != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Pointer)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for this error's code. A
// circular reference is also an unresolvable one.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrMalformedDocument:
		return e.Code == MalformedDocument
	case ErrUnresolvableReference:
		return e.Code == UnresolvableReference || e.Code == CircularReference
	case ErrCircularReference:
		return e.Code == CircularReference
	case ErrTypeMismatch:
		return e.Code == TypeMismatch
	case ErrEmptyTemplate:
		return e.Code == EmptyTemplate
	}
	return false
}

// report logs a non-fatal composition error as a warning diagnostic.
func report(log logrus.FieldLogger, err *Error) {
	fields := logrus.Fields{"code": string(err.Code)}
	if err.Location != "" {
		fields["location"] = err.Location
	}
	if err.Pointer != "" {
		fields["ref"] = err.Pointer
	}
	entry := log.WithFields(fields)
	if err.Cause != nil {
		entry = entry.WithError(err.Cause)
	}
	entry.Warn(err.Message)
}
