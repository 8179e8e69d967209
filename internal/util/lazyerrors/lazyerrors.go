// Package lazyerrors provides error wrapping for lazy programmers.
//
// It adds file locations to errors without any extra effort,
// so wrapped errors can be traced back through call sites
// that did not bother to add messages of their own.
package lazyerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// New returns an error with the given message and the caller's location.
func New(msg string) error {
	return &withLocation{err: errors.New(msg), loc: location(1)}
}

// Errorf returns a formatted error with the caller's location.
// It supports the %w verb.
func Errorf(format string, args ...any) error {
	return &withLocation{err: fmt.Errorf(format, args...), loc: location(1)}
}

// Error wraps the given error with the caller's location.
// It returns nil if err is nil.
func Error(err error) error {
	if err == nil {
		return nil
	}

	return &withLocation{err: err, loc: location(1)}
}

// withLocation is an error wrapper that carries the call site.
type withLocation struct {
	err error
	loc string
}

// Error implements the error interface.
func (w *withLocation) Error() string {
	return w.loc + " " + w.err.Error()
}

// Unwrap makes the wrapper compatible with errors.Is / errors.As.
func (w *withLocation) Unwrap() error {
	return w.err
}

// location returns a short file:line string for the caller skip+1 frames up.
func location(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "[unknown]"
	}

	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}

	return fmt.Sprintf("[%s:%d]", file, line)
}
