// Package must provides helpers that panic on error.
//
// They are for situations where an error can only be caused by a programming
// mistake, never by input. Panicking there is better than returning an error
// that every caller would have to handle without being able to do anything
// meaningful about it.
package must

import "github.com/marlindb/marlin/internal/util/lazyerrors"

// NotFail panics if err is not nil, returns res otherwise.
func NotFail[T any](res T, err error) T {
	NoError(err)
	return res
}

// NoError panics if err is not nil.
func NoError(err error) {
	if err != nil {
		panic(lazyerrors.Error(err))
	}
}

// NotBeZero panics if the value is the zero value of its type.
func NotBeZero[T comparable](v T) {
	var zero T
	if v == zero {
		panic("must not be zero")
	}
}
