package marlin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// The tests below check predicate and grouping semantics instead of command
// shapes: compiled filters and group stages are evaluated against a seeded
// document set and the matched results compared to manually computed
// expectations.

// seededUsers is the fixed document set predicates are evaluated against.
func seededUsers() []bson.D {
	return []bson.D{
		{{Key: "_id", Value: int32(1)}, {Key: "active", Value: true}, {Key: "age", Value: int32(31)}, {Key: "role", Value: "admin"}},
		{{Key: "_id", Value: int32(2)}, {Key: "active", Value: true}, {Key: "age", Value: int32(19)}, {Key: "role", Value: "user"}},
		{{Key: "_id", Value: int32(3)}, {Key: "active", Value: true}, {Key: "age", Value: int32(25)}, {Key: "role", Value: "admin"}},
		{{Key: "_id", Value: int32(4)}, {Key: "active", Value: false}, {Key: "age", Value: int32(40)}, {Key: "role", Value: "admin"}},
		{{Key: "_id", Value: int32(5)}, {Key: "active", Value: true}, {Key: "age", Value: int32(18)}, {Key: "role", Value: "user"}},
	}
}

func TestGroupOrEvaluation(t *testing.T) {
	t.Parallel()

	conn, _ := newTestConn(t, nil)

	cmd, err := conn.Table("users").
		Where("active", true).
		GroupStart().
		Where("age >", int32(30)).
		OrWhere("role", "admin").
		GroupEnd().
		GetCompiled()
	require.NoError(t, err)

	// active AND (age > 30 OR role = admin)
	assert.Equal(t, []int32{1, 3}, matchedIDs(t, compiledFilter(t, cmd), seededUsers()))
}

func TestNegatedGroupEvaluation(t *testing.T) {
	t.Parallel()

	conn, _ := newTestConn(t, nil)

	cmd, err := conn.Table("users").
		NotGroupStart().
		Where("age >", int32(30)).
		OrWhere("role", "admin").
		GroupEnd().
		GetCompiled()
	require.NoError(t, err)

	// NOT (age > 30 OR role = admin): the exact complement of the group
	assert.Equal(t, []int32{2, 5}, matchedIDs(t, compiledFilter(t, cmd), seededUsers()))
}

func TestMembershipComplementEvaluation(t *testing.T) {
	t.Parallel()

	conn, _ := newTestConn(t, nil)
	values := []any{int32(19), int32(25)}

	inCmd, err := conn.Table("users").WhereIn("age", values).GetCompiled()
	require.NoError(t, err)

	notCmd, err := conn.Table("users").WhereNotIn("age", values).GetCompiled()
	require.NoError(t, err)

	inIDs := matchedIDs(t, compiledFilter(t, inCmd), seededUsers())
	notIDs := matchedIDs(t, compiledFilter(t, notCmd), seededUsers())

	// exact complements within the seeded set
	assert.Equal(t, []int32{2, 3}, inIDs)
	assert.Equal(t, []int32{1, 4, 5}, notIDs)
	assert.Len(t, append(inIDs, notIDs...), len(seededUsers()))
}

func TestAggregationGroupedEvaluation(t *testing.T) {
	t.Parallel()

	docs := []bson.D{
		{{Key: "age", Value: int32(10)}, {Key: "active", Value: true}},
		{{Key: "age", Value: int32(15)}, {Key: "active", Value: false}},
		{{Key: "age", Value: int32(20)}, {Key: "active", Value: true}},
		{{Key: "age", Value: int32(25)}, {Key: "active", Value: false}},
	}

	conn, _ := newTestConn(t, nil)

	cmd, err := conn.Table("users").
		GroupBy("active").
		SelectCount("age", "count").
		SelectSum("age", "sum").
		SelectMin("age", "min").
		SelectMax("age", "max").
		GetCompiled()
	require.NoError(t, err)

	pipeline, ok := cmdValue(cmd, "pipeline").(bson.A)
	require.True(t, ok)
	require.NotEmpty(t, pipeline)

	stage, ok := pipeline[0].(bson.D)
	require.True(t, ok)
	require.Equal(t, "$group", stage[0].Key)

	spec, ok := stage[0].Value.(bson.D)
	require.True(t, ok)

	rows := evalGroupStage(t, spec, docs)
	require.Len(t, rows, 2)

	assert.Equal(t, map[string]int64{"count": 2, "sum": 30, "min": 10, "max": 20}, rows[true])
	assert.Equal(t, map[string]int64{"count": 2, "sum": 40, "min": 15, "max": 25}, rows[false])

	// a document without the counted field joins its group but is excluded
	// from the field count
	rows = evalGroupStage(t, spec, append(docs, bson.D{{Key: "active", Value: true}}))
	assert.Equal(t, int64(2), rows[true]["count"])
	assert.Equal(t, int64(30), rows[true]["sum"])
}

// compiledFilter extracts the filter document of a compiled find command.
func compiledFilter(tb testing.TB, cmd bson.D) bson.D {
	tb.Helper()

	filter, ok := cmdValue(cmd, "filter").(bson.D)
	require.True(tb, ok)

	return filter
}

// cmdValue returns the value of a command document key, or nil.
func cmdValue(cmd bson.D, key string) any {
	for _, el := range cmd {
		if el.Key == key {
			return el.Value
		}
	}

	return nil
}

// matchedIDs evaluates a compiled filter against the documents and returns
// the _id values of the matches, in document order.
func matchedIDs(tb testing.TB, filter bson.D, docs []bson.D) []int32 {
	tb.Helper()

	var ids []int32

	for _, d := range docs {
		if evalFilter(filter, d) {
			id, present := fieldValue(d, "_id")
			require.True(tb, present)

			ids = append(ids, id.(int32))
		}
	}

	return ids
}

// evalFilter reports whether a document satisfies a compiled filter. It
// understands exactly the operators the builder emits.
func evalFilter(filter, doc bson.D) bool {
	for _, el := range filter {
		switch el.Key {
		case "$and":
			members, _ := el.Value.(bson.A)
			for _, m := range members {
				if d, ok := m.(bson.D); !ok || !evalFilter(d, doc) {
					return false
				}
			}
		case "$or":
			members, _ := el.Value.(bson.A)
			if !anyBranch(members, doc) {
				return false
			}
		case "$nor":
			members, _ := el.Value.(bson.A)
			if anyBranch(members, doc) {
				return false
			}
		default:
			v, present := fieldValue(doc, el.Key)
			if !evalCond(v, present, el.Value) {
				return false
			}
		}
	}

	return true
}

// anyBranch reports whether any branch of a boolean list matches.
func anyBranch(branches bson.A, doc bson.D) bool {
	for _, m := range branches {
		if d, ok := m.(bson.D); ok && evalFilter(d, doc) {
			return true
		}
	}

	return false
}

// evalCond checks one field's compiled condition against its value.
func evalCond(v any, present bool, cond any) bool {
	od, ok := cond.(bson.D)
	if !ok || !isOperatorDoc(od) {
		return present && equalValues(v, cond)
	}

	for _, el := range od {
		switch el.Key {
		case "$eq":
			if !present || !equalValues(v, el.Value) {
				return false
			}
		case "$ne":
			if present && equalValues(v, el.Value) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !present {
				return false
			}

			c, ok := compareValues(v, el.Value)
			if !ok {
				return false
			}

			switch el.Key {
			case "$gt":
				if c <= 0 {
					return false
				}
			case "$gte":
				if c < 0 {
					return false
				}
			case "$lt":
				if c >= 0 {
					return false
				}
			case "$lte":
				if c > 0 {
					return false
				}
			}
		case "$in":
			vals, _ := el.Value.(bson.A)
			if !present || !containsValue(vals, v) {
				return false
			}
		case "$nin":
			vals, _ := el.Value.(bson.A)
			if present && containsValue(vals, v) {
				return false
			}
		case "$not":
			if evalCond(v, present, el.Value) {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// isOperatorDoc reports whether every key of the document is an operator tag.
func isOperatorDoc(d bson.D) bool {
	if len(d) == 0 {
		return false
	}

	for _, el := range d {
		if !strings.HasPrefix(el.Key, "$") {
			return false
		}
	}

	return true
}

// containsValue reports whether the list holds an equal value.
func containsValue(vals bson.A, v any) bool {
	for _, m := range vals {
		if equalValues(v, m) {
			return true
		}
	}

	return false
}

// equalValues compares two scalars, treating all numeric types alike.
func equalValues(a, b any) bool {
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}

	return a == b
}

// compareValues orders two scalars when they are comparable.
func compareValues(a, b any) (int, bool) {
	if af, ok := numericValue(a); ok {
		bf, ok := numericValue(b)
		if !ok {
			return 0, false
		}

		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}

		return 0, true
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}

	return 0, false
}

// numericValue converts any BSON numeric scalar to float64.
func numericValue(v any) (float64, bool) {
	switch v := v.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// fieldValue returns a document's top-level field value.
func fieldValue(doc bson.D, field string) (any, bool) {
	for _, el := range doc {
		if el.Key == field {
			return el.Value, true
		}
	}

	return nil, false
}

// evalGroupStage applies a compiled group stage to the documents and returns
// one accumulator-alias row per group key value.
func evalGroupStage(tb testing.TB, spec bson.D, docs []bson.D) map[any]map[string]int64 {
	tb.Helper()

	require.Equal(tb, "_id", spec[0].Key)

	idSpec, ok := spec[0].Value.(bson.D)
	require.True(tb, ok)
	require.Len(tb, idSpec, 1)

	ref, ok := idSpec[0].Value.(string)
	require.True(tb, ok)
	keyField := strings.TrimPrefix(ref, "$")

	parts := map[any][]bson.D{}
	for _, d := range docs {
		k, _ := fieldValue(d, keyField)
		parts[k] = append(parts[k], d)
	}

	rows := make(map[any]map[string]int64, len(parts))

	for k, part := range parts {
		row := map[string]int64{}

		for _, acc := range spec[1:] {
			expr, ok := acc.Value.(bson.D)
			require.True(tb, ok)

			row[acc.Key] = evalAccumulator(tb, expr, part)
		}

		rows[k] = row
	}

	return rows
}

// evalAccumulator applies one group accumulator over a document partition.
func evalAccumulator(tb testing.TB, expr bson.D, docs []bson.D) int64 {
	tb.Helper()

	require.Len(tb, expr, 1)
	key, operand := expr[0].Key, expr[0].Value

	if ref, ok := operand.(string); ok {
		field := strings.TrimPrefix(ref, "$")

		var vals []int64
		for _, d := range docs {
			if v, present := fieldValue(d, field); present {
				if f, ok := numericValue(v); ok {
					vals = append(vals, int64(f))
				}
			}
		}
		require.NotEmpty(tb, vals)

		switch key {
		case "$min":
			res := vals[0]
			for _, v := range vals[1:] {
				if v < res {
					res = v
				}
			}
			return res
		case "$max":
			res := vals[0]
			for _, v := range vals[1:] {
				if v > res {
					res = v
				}
			}
			return res
		case "$sum":
			var res int64
			for _, v := range vals {
				res += v
			}
			return res
		}

		tb.Fatalf("unexpected accumulator %q", key)
	}

	require.Equal(tb, "$sum", key)

	if cond, ok := operand.(bson.D); ok {
		// a conditional sum counts present, non-null values of one field
		field := countedField(tb, cond)

		var n int64
		for _, d := range docs {
			if v, present := fieldValue(d, field); present && v != nil {
				n++
			}
		}

		return n
	}

	// $sum of a constant 1 counts rows
	return int64(len(docs))
}

// countedField extracts the field a conditional count accumulator inspects.
func countedField(tb testing.TB, cond bson.D) string {
	tb.Helper()

	args, ok := cond[0].Value.(bson.A) // $cond: [test, 1, 0]
	require.True(tb, ok)
	require.NotEmpty(tb, args)

	ne, ok := args[0].(bson.D)
	require.True(tb, ok)

	neArgs, ok := ne[0].Value.(bson.A) // $ne: [{$ifNull: [ref, null]}, null]
	require.True(tb, ok)
	require.NotEmpty(tb, neArgs)

	ifNull, ok := neArgs[0].(bson.D)
	require.True(tb, ok)

	refs, ok := ifNull[0].Value.(bson.A)
	require.True(tb, ok)
	require.NotEmpty(tb, refs)

	ref, ok := refs[0].(string)
	require.True(tb, ok)

	return strings.TrimPrefix(ref, "$")
}
