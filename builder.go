package marlin

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/aggregation"
	"github.com/marlindb/marlin/internal/clause"
	"github.com/marlindb/marlin/internal/driver"
	"github.com/marlindb/marlin/internal/schema"
)

// Builder accumulates the state of exactly one logical operation.
//
// It is request-scoped and not safe for concurrent use. Terminal calls
// compile the accumulated state into a single command document, execute it,
// and clear the builder; the compile-only variants do neither.
//
//nolint:vet // for readability
type Builder struct {
	conn  *Conn
	table string

	fields         []string
	distinct       bool
	distinctFields []string

	filter *clause.Stack
	having *clause.Stack
	update *clause.Update

	groupFields []string
	accums      []aggregation.Accumulator

	sort   bson.D
	limit  int64
	offset int64

	upsert             bool
	allowNoFilterWrite bool

	sess *Session
	sch  *schema.Schema
	err  *Error // first deferred builder error, surfaced at the terminal call
}

// newBuilder creates a builder for one collection.
func newBuilder(conn *Conn, table string) *Builder {
	return &Builder{
		conn:   conn,
		table:  table,
		filter: clause.NewStack(),
		having: clause.NewStack(),
		update: clause.NewUpdate(),
	}
}

// ResetQuery clears all accumulated state. Terminal calls do this
// implicitly.
func (b *Builder) ResetQuery() *Builder {
	b.fields = nil
	b.distinct = false
	b.distinctFields = nil
	b.filter.Reset()
	b.having.Reset()
	b.update.Reset()
	b.groupFields = nil
	b.accums = nil
	b.sort = nil
	b.limit = 0
	b.offset = 0
	b.upsert = false
	b.allowNoFilterWrite = false
	b.err = nil

	return b
}

// compileParams returns condition compilation parameters for this builder.
func (b *Builder) compileParams(negate, raw bool) *clause.CompileParams {
	params := &clause.CompileParams{
		StripPrefixes: []string{b.table},
		Negate:        negate,
		Raw:           raw,
	}

	if b.conn.prefix != "" {
		params.StripPrefixes = append(params.StripPrefixes, b.conn.prefix+b.table)
	}

	if b.sch != nil {
		params.Coerce = b.sch.Coerce
	}

	return params
}

// Select adds projected fields.
func (b *Builder) Select(fields ...string) *Builder {
	b.fields = append(b.fields, fields...)
	return b
}

// Distinct requests one result row per distinct combination of the given
// fields, or of the projected fields when none are given.
func (b *Builder) Distinct(fields ...string) *Builder {
	b.distinct = true
	b.distinctFields = append(b.distinctFields, fields...)

	return b
}

// Where adds a condition joined with AND. The key may carry a trailing
// relational operator: "age >=".
func (b *Builder) Where(key string, value any) *Builder {
	return b.where(key, value, false, false, false)
}

// OrWhere adds a condition joined with OR.
func (b *Builder) OrWhere(key string, value any) *Builder {
	return b.where(key, value, true, false, false)
}

// WhereNot adds a complemented condition joined with AND.
func (b *Builder) WhereNot(key string, value any) *Builder {
	return b.where(key, value, false, true, false)
}

// OrWhereNot adds a complemented condition joined with OR.
func (b *Builder) OrWhereNot(key string, value any) *Builder {
	return b.where(key, value, true, true, false)
}

// WhereRaw adds a condition whose value is an operator document used
// verbatim.
func (b *Builder) WhereRaw(key string, expr any) *Builder {
	return b.where(key, expr, false, false, true)
}

// OrWhereRaw adds a verbatim operator-document condition joined with OR.
func (b *Builder) OrWhereRaw(key string, expr any) *Builder {
	return b.where(key, expr, true, false, true)
}

// where compiles and merges one condition.
func (b *Builder) where(key string, value any, asOr, negate, raw bool) *Builder {
	field, e := clause.Compile(key, value, b.compileParams(negate, raw))
	b.filter.AddCond(field, e, asOr)

	return b
}

// WhereIn adds an in-set condition joined with AND.
func (b *Builder) WhereIn(field string, values []any) *Builder {
	return b.whereIn(field, values, false, false)
}

// OrWhereIn adds an in-set condition joined with OR.
func (b *Builder) OrWhereIn(field string, values []any) *Builder {
	return b.whereIn(field, values, true, false)
}

// WhereNotIn adds a not-in-set condition joined with AND.
func (b *Builder) WhereNotIn(field string, values []any) *Builder {
	return b.whereIn(field, values, false, true)
}

// OrWhereNotIn adds a not-in-set condition joined with OR.
func (b *Builder) OrWhereNotIn(field string, values []any) *Builder {
	return b.whereIn(field, values, true, true)
}

// whereIn compiles and merges one membership condition.
func (b *Builder) whereIn(field string, values []any, asOr, exclude bool) *Builder {
	f, e := clause.NewMembership(field, values, exclude, b.compileParams(false, false))
	b.filter.AddCond(f, e, asOr)

	return b
}

// Like adds a substring match condition joined with AND.
func (b *Builder) Like(field, term string, insensitive bool) *Builder {
	return b.like(field, term, insensitive, false, false)
}

// OrLike adds a substring match condition joined with OR.
func (b *Builder) OrLike(field, term string, insensitive bool) *Builder {
	return b.like(field, term, insensitive, true, false)
}

// NotLike adds a complemented substring match condition joined with AND.
func (b *Builder) NotLike(field, term string, insensitive bool) *Builder {
	return b.like(field, term, insensitive, false, true)
}

// OrNotLike adds a complemented substring match condition joined with OR.
func (b *Builder) OrNotLike(field, term string, insensitive bool) *Builder {
	return b.like(field, term, insensitive, true, true)
}

// like compiles and merges one match condition. The term is matched
// literally anywhere in the value.
func (b *Builder) like(field, term string, insensitive, asOr, negate bool) *Builder {
	params := b.compileParams(negate, false)
	field = firstPrefixStripped(field, params.StripPrefixes)

	var e clause.Expr = clause.Match{Pattern: regexp.QuoteMeta(term), Insensitive: insensitive}
	if negate {
		e = e.Negate()
	}

	b.filter.AddCond(field, e, asOr)

	return b
}

// Between adds an inclusive range condition joined with AND.
func (b *Builder) Between(field string, low, high any) *Builder {
	f, e := clause.NewRange(field, low, high, false, b.compileParams(false, false))
	b.filter.AddCond(f, e, false)

	return b
}

// NotBetween adds the complement of an inclusive range condition.
func (b *Builder) NotBetween(field string, low, high any) *Builder {
	f, e := clause.NewRange(field, low, high, true, b.compileParams(false, false))
	b.filter.AddCond(f, e, false)

	return b
}

// GroupStart opens a nested group joined with AND.
func (b *Builder) GroupStart() *Builder {
	b.filter.Open(false, false)
	return b
}

// OrGroupStart opens a nested group joined with OR.
func (b *Builder) OrGroupStart() *Builder {
	b.filter.Open(false, true)
	return b
}

// NotGroupStart opens a complemented nested group joined with AND.
func (b *Builder) NotGroupStart() *Builder {
	b.filter.Open(true, false)
	return b
}

// GroupEnd closes the innermost group.
func (b *Builder) GroupEnd() *Builder {
	b.filter.Close()
	return b
}

// OrGroupEnd closes the innermost group, joining it with OR regardless of
// how it was opened.
func (b *Builder) OrGroupEnd() *Builder {
	b.filter.CloseOr()
	return b
}

// OrderBy appends a sort field; direction accepts ASC, DESC, 1 and -1
// spellings.
func (b *Builder) OrderBy(field, direction string) *Builder {
	dir := int32(1)

	switch direction {
	case "DESC", "desc", "-1":
		dir = -1
	}

	b.sort = append(b.sort, bson.E{Key: field, Value: dir})

	return b
}

// Limit caps the number of result documents.
func (b *Builder) Limit(n int64) *Builder {
	b.limit = n
	return b
}

// Offset skips the first n result documents.
func (b *Builder) Offset(n int64) *Builder {
	b.offset = n
	return b
}

// GroupBy adds group-by fields.
func (b *Builder) GroupBy(fields ...string) *Builder {
	b.groupFields = append(b.groupFields, fields...)
	return b
}

// Having adds a post-group condition over aggregation aliases and group
// keys.
func (b *Builder) Having(key string, value any) *Builder {
	field, e := clause.Compile(key, value, &clause.CompileParams{})
	b.having.AddCond(field, e, false)

	return b
}

// SelectMin adds a minimum aggregation; the alias defaults to the field
// name.
func (b *Builder) SelectMin(field, alias string) *Builder {
	return b.aggregate(aggregation.Min, field, alias)
}

// SelectMax adds a maximum aggregation.
func (b *Builder) SelectMax(field, alias string) *Builder {
	return b.aggregate(aggregation.Max, field, alias)
}

// SelectAvg adds a mean aggregation.
func (b *Builder) SelectAvg(field, alias string) *Builder {
	return b.aggregate(aggregation.Avg, field, alias)
}

// SelectSum adds a sum aggregation.
func (b *Builder) SelectSum(field, alias string) *Builder {
	return b.aggregate(aggregation.Sum, field, alias)
}

// SelectCount adds a count aggregation. A concrete field counts present,
// non-null values of that field; the wildcard "*" counts rows.
func (b *Builder) SelectCount(field, alias string) *Builder {
	if field == "" || field == "*" {
		if alias == "" {
			alias = "count"
		}

		b.accums = append(b.accums, aggregation.Accumulator{Kind: aggregation.CountRows, Alias: alias})

		return b
	}

	return b.aggregate(aggregation.CountField, field, alias)
}

// aggregate appends one aggregation function.
func (b *Builder) aggregate(kind aggregation.AccumulatorKind, field, alias string) *Builder {
	if alias == "" {
		alias = field
	}

	b.accums = append(b.accums, aggregation.Accumulator{Kind: kind, Field: field, Alias: alias})

	return b
}

// Set assigns a field value for update and insert-building.
func (b *Builder) Set(field string, value any) *Builder {
	b.update.Add(clause.UpdateSet, field, clause.Normalize(field, value))
	return b
}

// SetAll assigns every field of the document.
func (b *Builder) SetAll(doc bson.D) *Builder {
	for _, el := range doc {
		b.Set(el.Key, el.Value)
	}

	return b
}

// SetInc increments a field by delta on update.
func (b *Builder) SetInc(field string, delta any) *Builder {
	b.update.Add(clause.UpdateInc, field, delta)
	return b
}

// SetDec decrements a numeric field by delta on update.
func (b *Builder) SetDec(field string, delta int64) *Builder {
	b.update.Add(clause.UpdateInc, field, -delta)
	return b
}

// UnsetField removes a field on update.
func (b *Builder) UnsetField(field string) *Builder {
	b.update.Add(clause.UpdateUnset, field, "")
	return b
}

// SetOnInsert assigns a field value only when an upsert inserts.
func (b *Builder) SetOnInsert(field string, value any) *Builder {
	b.update.Add(clause.UpdateSetOnInsert, field, clause.Normalize(field, value))
	return b
}

// Push appends a value to an array field on update.
func (b *Builder) Push(field string, value any) *Builder {
	b.update.Add(clause.UpdatePush, field, value)
	return b
}

// Pull removes matching values from an array field on update.
func (b *Builder) Pull(field string, value any) *Builder {
	b.update.Add(clause.UpdatePull, field, value)
	return b
}

// AddToSet appends a value to an array field unless already present.
func (b *Builder) AddToSet(field string, value any) *Builder {
	b.update.Add(clause.UpdateAddToSet, field, value)
	return b
}

// SetUpsertFlag makes update and replace insert when nothing matches.
func (b *Builder) SetUpsertFlag(upsert bool) *Builder {
	b.upsert = upsert
	return b
}

// AllowNoFilterWrite opts in to multi-document writes with an empty filter.
func (b *Builder) AllowNoFilterWrite(allow bool) *Builder {
	b.allowNoFilterWrite = allow
	return b
}

// WithSession routes the terminal command through a transaction handle.
func (b *Builder) WithSession(sess *Session) *Builder {
	b.sess = sess
	return b
}

// WithSchema sets the collection schema used for best-effort value coercion.
// Without one, all fields are untyped.
func (b *Builder) WithSchema(sch *schema.Schema) *Builder {
	b.sch = sch
	return b
}

// Join always defers an unsupported-feature error to the terminal call:
// cross-collection joins have no analogue in the target store.
func (b *Builder) Join(string, string) *Builder {
	return b.fail(driver.NewUnsupportedError("cross-collection joins are not supported"))
}

// fail defers a builder error to the terminal call.
func (b *Builder) fail(err *Error) *Builder {
	if b.err == nil {
		b.err = err
	}

	return b
}

// firstPrefixStripped strips a collection qualifier off a bare field name.
func firstPrefixStripped(field string, prefixes []string) string {
	return clause.StripQualifier(field, prefixes)
}
