package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Error kinds. Match them with Is.
var (
	// ErrProtocol marks a remote stream that broke the event protocol.
	ErrProtocol = stderrors.New("protocol violation")
	// ErrTransport marks any failure reported by the transport client.
	ErrTransport = stderrors.New("transport failure")
	// ErrInterrupted marks a user interrupt or end of input. It ends a
	// session without being reported.
	ErrInterrupted = stderrors.New("interrupted")
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// NewKind creates an error of the given kind with file and line number
// information.
func NewKind(kind error, format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), kind)
}

// WrapKind wraps err and marks it with kind. The result matches both. If err
// is nil, WrapKind returns nil.
func WrapKind(kind, err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w: %w", caller(), fmt.Sprintf(format, a...), kind, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
