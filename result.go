package marlin

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Result is the normalized outcome of one terminal builder call.
//
// Affected count, inserted identifier and result documents are explicit
// return values instead of connection-level state, so a Result can never
// carry stale metadata from a previous call.
//
//nolint:vet // for readability
type Result struct {
	// OK reports whether the operation succeeded.
	OK bool

	// Docs are the decoded result documents of a read.
	Docs []bson.D

	// Affected is the number of documents a write touched.
	Affected int64

	// InsertedID is the identifier of a single inserted or upserted
	// document, when one can be determined.
	InsertedID any

	// Count is the result of count terminals.
	Count int64

	// Err carries the failure in lenient mode; nil otherwise.
	Err *Error
}
