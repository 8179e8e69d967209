package driver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marlindb/marlin/internal/util/lazyerrors"
)

// Executor serializes, executes and classifies database commands.
type Executor struct {
	r Runner
	l *slog.Logger
	m *metrics
	t trace.Tracer
}

// NewExecutorParams represents the parameters of NewExecutor function.
//
//nolint:vet // for readability
type NewExecutorParams struct {
	Runner Runner
	L      *slog.Logger

	// Name labels this executor's metrics; "database" when empty.
	Name string

	_ struct{} // prevent unkeyed literals
}

// NewExecutor creates a new Executor.
func NewExecutor(params *NewExecutorParams) *Executor {
	name := params.Name
	if name == "" {
		name = "database"
	}

	return &Executor{
		r: params.Runner,
		l: params.L,
		m: newMetrics(name),
		t: otel.Tracer("github.com/marlindb/marlin/internal/driver"),
	}
}

// ExecuteParams represents the parameters of Execute method.
//
//nolint:vet // for readability
type ExecuteParams struct {
	// Command is the fully formed command document.
	Command bson.D

	// Session, if set, routes the command through a transaction handle.
	Session *Session

	// AllowNoFilterWrite permits multi-document update/delete commands
	// with an empty filter.
	AllowNoFilterWrite bool

	_ struct{} // prevent unkeyed literals
}

// ExecuteResult is the normalized outcome of one command round-trip.
//
//nolint:vet // for readability
type ExecuteResult struct {
	Kind     Kind
	Response bson.D

	// Docs are the drained cursor documents of a read command.
	Docs []bson.D

	// Affected is the write's affected-document count.
	Affected int64

	// InsertedID is the identifier of a single inserted or upserted
	// document, when one can be determined.
	InsertedID any
}

// Execute runs one command: converts portable literals, classifies the
// command, applies the write safety policy, dispatches it, and extracts
// normalized metadata from the response.
//
// Local validation and safety failures are detected before any network
// call and returned as structured *Error values.
func (e *Executor) Execute(ctx context.Context, params *ExecuteParams) (*ExecuteResult, error) {
	if len(params.Command) == 0 {
		return nil, NewValidationError("command document is empty")
	}

	cmd, ok := ConvertLiterals(params.Command).(bson.D)
	if !ok {
		return nil, NewValidationError("command payload is not a document")
	}

	verb := Verb(cmd)
	kind := Classify(cmd)

	if kind == KindWrite && !params.AllowNoFilterWrite {
		if err := guardNoFilterWrite(cmd); err != nil {
			return nil, err
		}
	}

	if params.Session != nil {
		var err error
		if ctx, err = params.Session.Context(ctx); err != nil {
			return nil, err
		}
	}

	ctx, span := e.t.Start(ctx, "command", trace.WithAttributes(
		attribute.String("db.operation", verb),
		attribute.String("db.command.kind", kind.String()),
	))
	defer span.End()

	start := time.Now()
	resp, err := e.r.RunCommand(ctx, cmd)
	e.m.duration.WithLabelValues(verb).Observe(time.Since(start).Seconds())

	if err != nil {
		e.m.commands.WithLabelValues(verb, kind.String(), "error").Inc()
		e.l.WarnContext(ctx, "command failed", slog.String("verb", verb), slog.Any("error", err))

		if As(err) != nil {
			return nil, err
		}

		return nil, lazyerrors.Error(err)
	}

	if err = responseError(resp); err != nil {
		e.m.commands.WithLabelValues(verb, kind.String(), "error").Inc()
		return nil, err
	}

	e.m.commands.WithLabelValues(verb, kind.String(), "ok").Inc()

	res := &ExecuteResult{
		Kind:     kind,
		Response: resp,
	}

	if kind == KindWrite {
		res.Affected = extractAffected(resp)
		res.InsertedID = extractInsertedID(cmd, resp)

		return res, nil
	}

	it, err := newCursorIterator(ctx, e.r, resp)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	if res.Docs, err = it.Drain(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// Describe implements prometheus.Collector.
func (e *Executor) Describe(ch chan<- *prometheus.Desc) {
	e.m.Describe(ch)
}

// Collect implements prometheus.Collector.
func (e *Executor) Collect(ch chan<- prometheus.Metric) {
	e.m.Collect(ch)
}

// guardNoFilterWrite refuses multi-document update, whole-document replace
// and delete statements whose filter is empty.
//
// The command protocol makes a full-collection mutation look identical to a
// scoped one, so an unscoped mass-write requires explicit opt-in.
func guardNoFilterWrite(cmd bson.D) error {
	switch Verb(cmd) {
	case VerbUpdate:
		updates, _ := lookup(cmd, "updates").(bson.A)

		for _, u := range updates {
			st, ok := u.(bson.D)
			if !ok {
				continue
			}

			if !emptyFilter(lookup(st, "q")) {
				continue
			}

			if multi, _ := lookup(st, "multi").(bool); multi {
				return NewUnsafeError("update of all documents requires an explicit no-filter override")
			}

			if ud, ok := lookup(st, "u").(bson.D); ok && replacement(ud) {
				return NewUnsafeError("replace without a filter requires an explicit no-filter override")
			}
		}

	case VerbDelete:
		deletes, _ := lookup(cmd, "deletes").(bson.A)

		for _, d := range deletes {
			st, ok := d.(bson.D)
			if !ok {
				continue
			}

			limit, hasLimit := asInt64(lookup(st, "limit"))
			if hasLimit && limit == 0 && emptyFilter(lookup(st, "q")) {
				return NewUnsafeError("delete of all documents requires an explicit no-filter override")
			}
		}
	}

	return nil
}

// replacement reports whether an update document is a whole-document
// replacement rather than an operator update.
func replacement(u bson.D) bool {
	if len(u) == 0 {
		return false
	}

	for _, el := range u {
		if strings.HasPrefix(el.Key, "$") {
			return false
		}
	}

	return true
}

// emptyFilter reports whether the filter value selects everything.
func emptyFilter(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case bson.D:
		return len(v) == 0
	case bson.M:
		return len(v) == 0
	default:
		return false
	}
}

// responseError converts a non-ok status document into a server error.
//
// Per-statement write errors are surfaced the same way, first error wins;
// codes and messages are the server's, unchanged.
func responseError(resp bson.D) error {
	if okVal, has := asInt64(lookup(resp, "ok")); has && okVal != 1 {
		code, _ := asInt64(lookup(resp, "code"))
		msg, _ := lookup(resp, "errmsg").(string)

		return NewServerError(int32(code), msg)
	}

	if writeErrors, _ := lookup(resp, "writeErrors").(bson.A); len(writeErrors) > 0 {
		if first, ok := writeErrors[0].(bson.D); ok {
			code, _ := asInt64(lookup(first, "code"))
			msg, _ := lookup(first, "errmsg").(string)

			return NewServerError(int32(code), msg)
		}
	}

	return nil
}

// extractAffected returns the affected-document count from whichever of the
// known response fields is present, in preference order.
func extractAffected(resp bson.D) int64 {
	for _, key := range []string{"n", "nModified", "modifiedCount", "deletedCount", "insertedCount", "upsertedCount"} {
		if v, ok := asInt64(lookup(resp, key)); ok {
			return v
		}
	}

	return 0
}

// extractInsertedID determines the inserted or upserted document identifier.
//
// Preference order: the response's insertedIds, then the _id of the single
// submitted document, then the upsert metadata of update and findAndModify
// responses.
func extractInsertedID(cmd, resp bson.D) any {
	if ids, _ := lookup(resp, "insertedIds").(bson.A); len(ids) > 0 {
		return ids[0]
	}

	if docs, _ := lookup(cmd, "documents").(bson.A); len(docs) == 1 {
		if doc, ok := docs[0].(bson.D); ok {
			if id := lookup(doc, "_id"); id != nil {
				return id
			}
		}
	}

	if upserted, _ := lookup(resp, "upserted").(bson.A); len(upserted) > 0 {
		if first, ok := upserted[0].(bson.D); ok {
			if id := lookup(first, "_id"); id != nil {
				return id
			}
		}
	}

	if leo, ok := lookup(resp, "lastErrorObject").(bson.D); ok {
		if id := lookup(leo, "upserted"); id != nil {
			return id
		}
	}

	return nil
}

// asInt64 converts any BSON numeric value to int64.
func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// check interfaces
var (
	_ prometheus.Collector = (*Executor)(nil)
)
