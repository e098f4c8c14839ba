package deck

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines deck export error kinds.
type ErrorKind string

const (
	KindInvalidInput   ErrorKind = "invalid_input"
	KindEmptyCapture   ErrorKind = "empty_capture"
	KindCaptureFailure ErrorKind = "capture_failure"
	KindSerialization  ErrorKind = "serialization_failure"
	KindTimeout        ErrorKind = "timeout"
	KindCanceled       ErrorKind = "canceled"
	KindBusy           ErrorKind = "busy"
	KindNotFound       ErrorKind = "not_found"
	KindNotReady       ErrorKind = "not_ready"
	KindInternal       ErrorKind = "internal"
)

// ErrEmptyCapture is returned by surfaces when the captured region has no area.
var ErrEmptyCapture = NewError(KindEmptyCapture, "captured frame is empty", nil)

// Error wraps errors with a kind.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// NewError creates a new deck error.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindFromError(err)
	msg := err.Error()

	var deckErr *Error
	if errors.As(err, &deckErr) && deckErr.Msg != "" {
		msg = deckErr.Error()
	}

	switch kind {
	case KindInvalidInput:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode(string(kind))
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode(string(kind))
	case KindTimeout, KindCanceled, KindBusy, KindNotReady:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode(string(kind))
	case KindCaptureFailure, KindSerialization, KindEmptyCapture:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode(string(kind))
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode(string(KindInternal))
	}
}

// KindFromError maps an error to its deck error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var deckErr *Error
	if errors.As(err, &deckErr) {
		return deckErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	return KindInternal
}
