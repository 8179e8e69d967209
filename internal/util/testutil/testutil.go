// Package testutil provides helpers for tests.
package testutil

import (
	"log/slog"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/util/logging"
)

// Logger returns a test logger that writes through tb.Log.
func Logger(tb testing.TB) *slog.Logger {
	tb.Helper()

	z := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = &tbWriter{tb: tb}
		w.NoColor = true
	}))

	return slog.New(logging.NewHandler(z))
}

// tbWriter routes log output to the test log.
type tbWriter struct {
	tb testing.TB
}

// Write implements io.Writer.
func (w *tbWriter) Write(b []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(string(b))

	return len(b), nil
}

// Dump returns the canonical Extended JSON representation of the given BSON value.
// Non-document values are wrapped so arrays and scalars can be dumped too.
func Dump(tb testing.TB, v any) string {
	tb.Helper()

	switch v.(type) {
	case bson.D, bson.M, *bson.D:
	default:
		v = bson.D{{Key: "v", Value: v}}
	}

	b, err := bson.MarshalExtJSONIndent(v, true, false, "", "  ")
	require.NoError(tb, err)

	return string(b)
}

// AssertEqual compares two BSON values and reports a readable diff on mismatch.
func AssertEqual(tb testing.TB, expected, actual any) bool {
	tb.Helper()

	exp := Dump(tb, expected)
	act := Dump(tb, actual)

	if exp == act {
		return true
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	require.NoError(tb, err)

	return assert.Fail(tb, "not equal", "diff:\n%s", diff)
}
