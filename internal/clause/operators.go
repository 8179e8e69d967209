// Package clause compiles query-builder conditions into MongoDB filter
// and update documents.
//
// Conditions are represented as tagged expression variants with an explicit
// serializer per variant, so a compiled document's shape is decided by its
// type, not by inspecting untyped values at serialization time.
package clause

// Comparison operators of the query language.
// https://www.mongodb.com/docs/manual/reference/operator/query-comparison/
const (
	// OpEq matches values that are equal to a specified value.
	OpEq = "$eq"

	// OpNe matches all values that are not equal to a specified value.
	OpNe = "$ne"

	// OpGt matches values that are greater than a specified value.
	OpGt = "$gt"

	// OpGte matches values that are greater than or equal to a specified value.
	OpGte = "$gte"

	// OpLt matches values that are less than a specified value.
	OpLt = "$lt"

	// OpLte matches values that are less than or equal to a specified value.
	OpLte = "$lte"

	// OpIn matches any of the values specified in an array.
	OpIn = "$in"

	// OpNin matches none of the values specified in an array.
	OpNin = "$nin"
)

// Logical operators of the query language.
// https://www.mongodb.com/docs/manual/reference/operator/query-logical/
const (
	// OpAnd joins clauses with a logical AND.
	OpAnd = "$and"

	// OpOr joins clauses with a logical OR.
	OpOr = "$or"

	// OpNor joins clauses with a logical NOR.
	OpNor = "$nor"

	// OpNot inverts the effect of a single-field predicate.
	OpNot = "$not"

	// OpRegex matches string values against a regular expression.
	OpRegex = "$regex"
)

// relationalTokens maps the relational operator tokens accepted in condition
// keys ("age >=") to query language operators. Equality is the default when
// no token is present.
var relationalTokens = map[string]string{
	"=":  OpEq,
	"!=": OpNe,
	"<>": OpNe,
	">":  OpGt,
	">=": OpGte,
	"<":  OpLt,
	"<=": OpLte,
}
