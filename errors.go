package marlin

import (
	"github.com/marlindb/marlin/internal/driver"
)

// Error is a structured command-layer error.
type Error = driver.Error

// ErrorCategory classifies an error by who caused it and when it was
// detected.
type ErrorCategory = driver.Category

// Error categories.
const (
	// CategoryValidation is a malformed input shape or missing required
	// state, detected before any network call.
	CategoryValidation = driver.CategoryValidation

	// CategoryUnsafe is a safety-policy refusal.
	CategoryUnsafe = driver.CategoryUnsafe

	// CategoryServer is a command rejected by the database or a transport
	// failure; server codes and messages are passed through unchanged.
	CategoryServer = driver.CategoryServer

	// CategoryUnsupported is an operation with no analogue in the target
	// store.
	CategoryUnsupported = driver.CategoryUnsupported
)

// ErrSessionReleased is returned for any command issued through a session
// whose transaction was already committed or aborted.
var ErrSessionReleased = driver.ErrSessionReleased

// Session is an explicit transaction handle.
type Session = driver.Session
