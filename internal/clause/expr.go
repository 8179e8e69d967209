package clause

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Expr is a compiled single-field predicate.
//
// Tag returns the operator key the predicate occupies within a field's
// operator document; two predicates with the same tag on the same field
// replace each other (last write wins). Operand returns the value stored
// under that key. Negate returns the complement predicate.
type Expr interface {
	Tag() string
	Operand() any
	Negate() Expr
}

// Equality is a bare equality predicate.
//
// Alone on a field it serializes as the scalar itself; combined with other
// operators it serializes under $eq.
type Equality struct {
	Val any
}

// Tag implements Expr.
func (e Equality) Tag() string { return OpEq }

// Operand implements Expr.
func (e Equality) Operand() any { return e.Val }

// Negate implements Expr.
//
// A negated bare scalar is $ne, never a generic $not wrapper.
func (e Equality) Negate() Expr { return Comparison{Op: OpNe, Val: e.Val} }

// Comparison is a relational predicate ($ne, $gt, $gte, $lt, $lte).
type Comparison struct {
	Op  string
	Val any
}

// Tag implements Expr.
func (c Comparison) Tag() string { return c.Op }

// Operand implements Expr.
func (c Comparison) Operand() any { return c.Val }

// Negate implements Expr.
func (c Comparison) Negate() Expr {
	if c.Op == OpNe {
		return Equality{Val: c.Val}
	}

	return Not{Inner: c}
}

// Membership is a set inclusion or exclusion predicate ($in / $nin).
type Membership struct {
	Vals    bson.A
	Exclude bool
}

// Tag implements Expr.
func (m Membership) Tag() string {
	if m.Exclude {
		return OpNin
	}

	return OpIn
}

// Operand implements Expr.
func (m Membership) Operand() any { return m.Vals }

// Negate implements Expr.
//
// Inclusion becomes exclusion and vice versa.
func (m Membership) Negate() Expr {
	return Membership{Vals: m.Vals, Exclude: !m.Exclude}
}

// Match is a regular expression predicate.
//
// Alone on a field it serializes as a bare regular expression value;
// combined with other operators it serializes under $regex.
type Match struct {
	Pattern     string
	Insensitive bool
}

// Tag implements Expr.
func (m Match) Tag() string { return OpRegex }

// Operand implements Expr.
func (m Match) Operand() any { return m.regex() }

// Negate implements Expr.
func (m Match) Negate() Expr { return Not{Inner: m} }

// regex returns the predicate as a BSON regular expression value.
func (m Match) regex() primitive.Regex {
	var opts string
	if m.Insensitive {
		opts = "i"
	}

	return primitive.Regex{Pattern: m.Pattern, Options: opts}
}

// Not is a generic negation wrapper around another predicate.
type Not struct {
	Inner Expr
}

// Tag implements Expr.
func (n Not) Tag() string { return OpNot }

// Operand implements Expr.
//
// $not takes an operator document, so the inner predicate is always
// serialized in operator form, even a bare equality.
func (n Not) Operand() any {
	if r, ok := n.Inner.(Raw); ok {
		return r.Doc
	}

	return bson.D{{Key: n.Inner.Tag(), Value: n.Inner.Operand()}}
}

// Negate implements Expr.
func (n Not) Negate() Expr { return n.Inner }

// Raw is an operator document supplied by the caller and used verbatim.
type Raw struct {
	Doc bson.D
}

// Tag implements Expr.
//
// Raw occupies the whole field entry, so its tag never participates in
// operator-wise merging; the empty tag marks that.
func (r Raw) Tag() string { return "" }

// Operand implements Expr.
func (r Raw) Operand() any { return r.Doc }

// Negate implements Expr.
func (r Raw) Negate() Expr { return Not{Inner: r} }

// check interfaces
var (
	_ Expr = Equality{}
	_ Expr = Comparison{}
	_ Expr = Membership{}
	_ Expr = Match{}
	_ Expr = Not{}
	_ Expr = Raw{}
)
