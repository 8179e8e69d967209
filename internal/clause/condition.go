package clause

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// objectIDHex matches the textual form of a 12-byte object identifier.
var objectIDHex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// CompileParams configures condition compilation.
//
//nolint:vet // for readability
type CompileParams struct {
	// StripPrefixes are collection qualifiers (logical and prefixed names)
	// removed from the front of field keys; the target store has no
	// table-qualified field names.
	StripPrefixes []string

	// Coerce, if set, adjusts the value against the collection schema
	// before intrinsic normalization.
	Coerce func(field string, v any) any

	// Negate complements the compiled predicate.
	Negate bool

	// Raw uses an operator-document value verbatim instead of deriving the
	// predicate from the relational operator in the key.
	Raw bool

	_ struct{} // prevent unkeyed literals
}

// Compile converts a single key/value condition into a field name and a
// predicate.
//
// The key may carry a trailing relational operator token
// (=, !=, <>, >, >=, <, <=); equality is the default. A token that is not in
// that set is not an operator, and the whole key is taken as the field name.
func Compile(key string, value any, params *CompileParams) (string, Expr) {
	if params == nil {
		params = new(CompileParams)
	}

	field, op := splitOperator(key)
	field = StripQualifier(field, params.StripPrefixes)

	if params.Raw {
		if od, ok := asOperatorDoc(value); ok {
			var e Expr = Raw{Doc: od}
			if params.Negate {
				e = e.Negate()
			}

			return field, e
		}
	}

	if params.Coerce != nil {
		value = params.Coerce(field, value)
	}

	value = Normalize(field, value)

	var e Expr
	if op == OpEq {
		e = Equality{Val: value}
	} else {
		e = Comparison{Op: op, Val: value}
	}

	if params.Negate {
		e = e.Negate()
	}

	return field, e
}

// NewMembership compiles an in-set / not-in-set condition,
// normalizing operands element-wise.
func NewMembership(key string, values []any, exclude bool, params *CompileParams) (string, Expr) {
	if params == nil {
		params = new(CompileParams)
	}

	field := StripQualifier(key, params.StripPrefixes)

	vals := make(bson.A, len(values))
	for i, v := range values {
		if params.Coerce != nil {
			v = params.Coerce(field, v)
		}

		vals[i] = Normalize(field, v)
	}

	var e Expr = Membership{Vals: vals, Exclude: exclude}
	if params.Negate {
		e = e.Negate()
	}

	return field, e
}

// NewRange compiles a between / not-between condition as an inclusive range.
//
// Qualifier stripping and coercion apply the same way as for plain
// conditions.
func NewRange(key string, low, high any, negate bool, params *CompileParams) (string, Expr) {
	if params == nil {
		params = new(CompileParams)
	}

	field := StripQualifier(key, params.StripPrefixes)

	if params.Coerce != nil {
		low = params.Coerce(field, low)
		high = params.Coerce(field, high)
	}

	var e Expr = Raw{Doc: bson.D{
		{Key: OpGte, Value: Normalize(field, low)},
		{Key: OpLte, Value: Normalize(field, high)},
	}}

	if negate {
		e = e.Negate()
	}

	return field, e
}

// Normalize converts scalar values to their native wire types:
// a time value becomes a UTC millisecond timestamp, and a 24-character hex
// string becomes an object identifier when the field is an identifier field.
func Normalize(field string, v any) any {
	switch v := v.(type) {
	case time.Time:
		return primitive.NewDateTimeFromTime(v.UTC())
	case *time.Time:
		if v == nil {
			return nil
		}
		return primitive.NewDateTimeFromTime(v.UTC())
	case string:
		if idField(field) && objectIDHex.MatchString(v) {
			oid, err := primitive.ObjectIDFromHex(v)
			if err == nil {
				return oid
			}
		}
		return v
	default:
		return v
	}
}

// idField reports whether the field holds object identifiers:
// _id or id, bare or as a dotted suffix.
func idField(field string) bool {
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	return field == "_id" || field == "id"
}

// splitOperator parses a trailing relational operator token from a key.
func splitOperator(key string) (string, string) {
	key = strings.TrimSpace(key)

	i := strings.LastIndexByte(key, ' ')
	if i < 0 {
		return key, OpEq
	}

	op, ok := relationalTokens[key[i+1:]]
	if !ok {
		return key, OpEq
	}

	return strings.TrimSpace(key[:i]), op
}

// StripQualifier removes a leading "collection." qualifier from a field name.
func StripQualifier(field string, prefixes []string) string {
	for _, p := range prefixes {
		if p == "" {
			continue
		}

		if rest, ok := strings.CutPrefix(field, p+"."); ok && rest != "" {
			return rest
		}
	}

	return field
}

// asOperatorDoc reports whether the value is an operator document and
// returns it in ordered form.
func asOperatorDoc(v any) (bson.D, bool) {
	switch v := v.(type) {
	case bson.D:
		if operatorDoc(v) {
			return v, true
		}
	case bson.M:
		// unordered input is ordered by key for deterministic output
		keys := make([]string, 0, len(v))
		for k := range v {
			if !strings.HasPrefix(k, "$") {
				return nil, false
			}
			keys = append(keys, k)
		}

		if len(keys) == 0 {
			return nil, false
		}

		slices.Sort(keys)

		od := make(bson.D, 0, len(keys))
		for _, k := range keys {
			od = append(od, bson.E{Key: k, Value: v[k]})
		}

		return od, true
	}

	return nil, false
}
