// Package driver executes database command documents and classifies their
// responses.
//
// It is the only package that talks to the database. Callers hand it a fully
// formed command document; it converts portable literal encodings, applies
// the write safety policy, executes the command, and extracts normalized
// metadata (affected count, inserted identifier, result documents) from the
// heterogeneous response shapes the command protocol returns.
package driver

import (
	"errors"
	"fmt"
)

// Category classifies an error by who caused it and when it was detected.
type Category int

// Error categories.
const (
	// CategoryValidation is a malformed input shape or missing required
	// state, detected before any network call.
	CategoryValidation Category = 1 + iota

	// CategoryUnsafe is a safety-policy refusal, such as an unscoped
	// mass-write without explicit opt-in.
	CategoryUnsafe

	// CategoryServer is a command rejected by the database; code and
	// message are the server's, unchanged.
	CategoryServer

	// CategoryUnsupported is an operation with no analogue in the target
	// store.
	CategoryUnsupported
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryUnsafe:
		return "unsafe"
	case CategoryServer:
		return "server"
	case CategoryUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Error is a structured command-layer error.
//
//nolint:vet // for readability
type Error struct {
	Category Category
	Code     int32 // server error code, 0 for local errors
	Message  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Category, e.Code, e.Message)
	}

	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// NewValidationError creates a local validation error.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Message: fmt.Sprintf(format, args...)}
}

// NewUnsafeError creates a safety-policy refusal.
func NewUnsafeError(format string, args ...any) *Error {
	return &Error{Category: CategoryUnsafe, Message: fmt.Sprintf(format, args...)}
}

// NewServerError creates an error carrying the server's code and message.
func NewServerError(code int32, message string) *Error {
	return &Error{Category: CategoryServer, Code: code, Message: message}
}

// NewUnsupportedError creates an unsupported-feature error.
func NewUnsupportedError(format string, args ...any) *Error {
	return &Error{Category: CategoryUnsupported, Message: fmt.Sprintf(format, args...)}
}

// As unwraps err to a structured *Error, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return nil
}

// ErrSessionReleased is returned for any command issued through a session
// whose transaction was already committed or aborted.
var ErrSessionReleased = errors.New("session already released")
