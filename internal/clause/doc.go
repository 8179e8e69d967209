package clause

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Doc is an ordered filter document under construction.
//
// Fields keep their first-seen position; repeated conditions on the same
// field merge operator-wise, with last write winning within an operator.
type Doc struct {
	entries []*fieldEntry
}

// fieldEntry holds the accumulated predicates of a single field.
type fieldEntry struct {
	field string
	exprs []Expr
}

// NewDoc creates an empty filter document.
func NewDoc() *Doc {
	return new(Doc)
}

// entry returns the field's entry, or nil.
func (d *Doc) entry(field string) *fieldEntry {
	for _, e := range d.entries {
		if e.field == field {
			return e
		}
	}

	return nil
}

// Add merges a predicate into the document.
//
// A predicate with the same operator tag as an existing one replaces it.
// A Raw predicate replaces the whole field entry, and is itself replaced
// by any later predicate on the same field.
func (d *Doc) Add(field string, e Expr) {
	entry := d.entry(field)
	if entry == nil {
		d.entries = append(d.entries, &fieldEntry{field: field, exprs: []Expr{e}})
		return
	}

	if _, raw := e.(Raw); raw {
		entry.exprs = []Expr{e}
		return
	}

	if len(entry.exprs) == 1 {
		if _, raw := entry.exprs[0].(Raw); raw {
			entry.exprs = []Expr{e}
			return
		}
	}

	for i, old := range entry.exprs {
		if old.Tag() == e.Tag() {
			entry.exprs[i] = e
			return
		}
	}

	entry.exprs = append(entry.exprs, e)
}

// MergeBSON merges an already-compiled plain filter document field-wise.
//
// Operator documents are decomposed back into predicates so that operator-wise
// merge rules keep applying; anything unrecognized is kept verbatim.
func (d *Doc) MergeBSON(doc bson.D) {
	for _, el := range doc {
		for _, e := range decompose(el.Value) {
			d.Add(el.Key, e)
		}
	}
}

// decompose converts a compiled field value back into predicates.
func decompose(v any) []Expr {
	od, ok := v.(bson.D)
	if !ok || !operatorDoc(od) {
		return []Expr{Equality{Val: v}}
	}

	res := make([]Expr, 0, len(od))

	for _, el := range od {
		switch el.Key {
		case OpEq:
			res = append(res, Equality{Val: el.Value})
		case OpNe, OpGt, OpGte, OpLt, OpLte:
			res = append(res, Comparison{Op: el.Key, Val: el.Value})
		case OpIn, OpNin:
			vals, _ := el.Value.(bson.A)
			res = append(res, Membership{Vals: vals, Exclude: el.Key == OpNin})
		default:
			return []Expr{Raw{Doc: od}}
		}
	}

	return res
}

// operatorDoc reports whether every key of the document is an operator tag.
func operatorDoc(d bson.D) bool {
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

// Empty reports whether the document has no conditions.
func (d *Doc) Empty() bool {
	return len(d.entries) == 0
}

// Clone returns a copy sharing no mutable state with the original.
func (d *Doc) Clone() *Doc {
	res := &Doc{entries: make([]*fieldEntry, len(d.entries))}

	for i, entry := range d.entries {
		res.entries[i] = &fieldEntry{
			field: entry.field,
			exprs: append([]Expr{}, entry.exprs...),
		}
	}

	return res
}

// BSON serializes the document.
//
// A field holding a single bare equality or regular expression match is
// serialized as the scalar itself; everything else becomes an operator
// document in predicate insertion order.
func (d *Doc) BSON() bson.D {
	res := make(bson.D, 0, len(d.entries))

	for _, entry := range d.entries {
		res = append(res, bson.E{Key: entry.field, Value: serializeExprs(entry.exprs)})
	}

	return res
}

// serializeExprs renders a field's predicates as a BSON value.
func serializeExprs(exprs []Expr) any {
	if len(exprs) == 1 {
		switch e := exprs[0].(type) {
		case Equality:
			return e.Val
		case Match:
			return e.regex()
		case Raw:
			return e.Doc
		}
	}

	od := make(bson.D, 0, len(exprs))
	for _, e := range exprs {
		od = append(od, bson.E{Key: e.Tag(), Value: e.Operand()})
	}

	return od
}
