package clause

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Stack builds a filter expression from a sequence of conditions and
// nested boolean groups.
//
// Open groups form a stack of frames; each frame accumulates plain field
// conditions and already-compiled boolean sub-expressions and is finalized
// depth-first on Close. The top-level filter is the root frame.
type Stack struct {
	root *frame
	open []*frame
}

// frame is one open boolean group.
//
// A frame starts in AND mode: plain conditions merge into cur and compiled
// boolean terms collect in bools. The first OR-joined term collapses the
// accumulated AND run into a single member and switches the frame to OR
// mode, where every further OR boundary flushes the current run into
// members. Previously accumulated terms are never dropped.
//
//nolint:vet // for readability
type frame struct {
	or      bool    // OR mode: members carry completed branches
	members bson.A  // completed OR branches
	cur     *Doc    // plain conditions of the current AND run
	bools   []bson.D // boolean sub-expressions of the current AND run

	negate bool // whole group is complemented on close
	joinOr bool // the closed group joins its parent with OR
}

// NewStack creates a stack with an empty top-level filter.
func NewStack() *Stack {
	return &Stack{root: newFrame(false, false)}
}

// newFrame creates an empty frame.
func newFrame(negate, joinOr bool) *frame {
	return &frame{cur: NewDoc(), negate: negate, joinOr: joinOr}
}

// Open starts a nested group.
//
// joinOr controls how the group joins the enclosing expression when closed;
// negate complements the whole group on close.
func (s *Stack) Open(negate, joinOr bool) {
	s.open = append(s.open, newFrame(negate, joinOr))
}

// Depth returns the number of open nested groups.
func (s *Stack) Depth() int {
	return len(s.open)
}

// Close finalizes the innermost open group and merges the compiled
// expression into the enclosing frame. Closing an empty group is a no-op;
// closing with no open group is ignored.
func (s *Stack) Close() {
	n := len(s.open)
	if n == 0 {
		return
	}

	f := s.open[n-1]
	s.open = s.open[:n-1]

	expr := f.compile()
	if len(expr) == 0 {
		return
	}

	s.top().addBool(expr, f.joinOr)
}

// CloseOr finalizes the innermost open group like Close, but joins it with
// OR regardless of how it was opened.
func (s *Stack) CloseOr() {
	if n := len(s.open); n > 0 {
		s.open[n-1].joinOr = true
	}

	s.Close()
}

// AddCond merges a single-field predicate into the innermost frame.
func (s *Stack) AddCond(field string, e Expr, asOr bool) {
	s.top().addCond(field, e, asOr)
}

// Empty reports whether no conditions have been accumulated anywhere.
func (s *Stack) Empty() bool {
	if !s.root.empty() {
		return false
	}

	for _, f := range s.open {
		if !f.empty() {
			return false
		}
	}

	return true
}

// Filter compiles the accumulated expression without mutating the stack,
// implicitly closing any groups still open. Identical call sequences
// produce identical documents.
func (s *Stack) Filter() bson.D {
	var child bson.D
	var childOr bool
	var has bool

	for i := len(s.open) - 1; i >= 0; i-- {
		f := s.open[i].clone()
		if has {
			f.addBool(child, childOr)
		}

		child = f.compile()
		childOr = s.open[i].joinOr
		has = len(child) > 0
	}

	root := s.root.clone()
	if has {
		root.addBool(child, childOr)
	}

	return root.compile()
}

// Reset discards all accumulated state.
func (s *Stack) Reset() {
	s.root = newFrame(false, false)
	s.open = nil
}

// top returns the innermost frame.
func (s *Stack) top() *frame {
	if n := len(s.open); n > 0 {
		return s.open[n-1]
	}

	return s.root
}

// addCond merges a field predicate into the frame.
func (f *frame) addCond(field string, e Expr, asOr bool) {
	if asOr && !f.empty() {
		f.flush()
	}

	f.cur.Add(field, e)
}

// addBool merges a compiled boolean expression into the frame.
//
// An OR-joined term first completes the current run as a branch, leaving the
// run empty, so the expression always lands in the fresh run: plain documents
// merge field-wise, nested AND lists splice in, everything else is kept as a
// separate term.
func (f *frame) addBool(expr bson.D, asOr bool) {
	if asOr && !f.empty() {
		f.flush()
	}

	switch {
	case plainDoc(expr):
		f.cur.MergeBSON(expr)
	case len(expr) == 1 && expr[0].Key == OpAnd:
		members, ok := expr[0].Value.(bson.A)
		if !ok {
			f.bools = append(f.bools, expr)
			return
		}

		for _, m := range members {
			if d, ok := m.(bson.D); ok {
				f.addBool(d, false)
				continue
			}

			f.bools = append(f.bools, bson.D{{Key: OpAnd, Value: bson.A{m}}})
		}
	default:
		f.bools = append(f.bools, expr)
	}
}

// flush completes the current AND run as an OR branch.
func (f *frame) flush() {
	f.or = true

	if expr := f.compileCur(); len(expr) > 0 {
		f.appendMember(expr)
	}

	f.cur = NewDoc()
	f.bools = nil
}

// appendMember adds a completed branch, flattening nested OR lists.
func (f *frame) appendMember(expr bson.D) {
	f.or = true

	if members, ok := orMembers(expr); ok {
		f.members = append(f.members, members...)
		return
	}

	f.members = append(f.members, expr)
}

// empty reports whether the frame holds nothing at all.
func (f *frame) empty() bool {
	return len(f.members) == 0 && f.curEmpty()
}

// curEmpty reports whether the current AND run holds nothing.
func (f *frame) curEmpty() bool {
	return f.cur.Empty() && len(f.bools) == 0
}

// clone returns a copy sharing no mutable state with the original.
func (f *frame) clone() *frame {
	return &frame{
		or:      f.or,
		members: append(bson.A{}, f.members...),
		cur:     f.cur.Clone(),
		bools:   append([]bson.D{}, f.bools...),
		negate:  f.negate,
		joinOr:  f.joinOr,
	}
}

// compileCur renders the current AND run.
//
// Sibling plain conditions are already one document; boolean sub-expressions
// become additional top-level keys when possible, and an explicit AND list
// only when keys would collide.
func (f *frame) compileCur() bson.D {
	doc := f.cur.BSON()

	if len(f.bools) == 0 {
		return doc
	}

	if len(doc) == 0 && len(f.bools) == 1 {
		return f.bools[0]
	}

	if merged, ok := mergeSiblings(doc, f.bools); ok {
		return merged
	}

	members := make(bson.A, 0, len(f.bools)+1)
	if len(doc) > 0 {
		members = append(members, doc)
	}

	for _, b := range f.bools {
		members = append(members, b)
	}

	return bson.D{{Key: OpAnd, Value: members}}
}

// mergeSiblings joins a plain document and boolean terms into one document
// of top-level keys, failing on any key collision.
func mergeSiblings(doc bson.D, bools []bson.D) (bson.D, bool) {
	seen := make(map[string]struct{}, len(doc))
	for _, el := range doc {
		seen[el.Key] = struct{}{}
	}

	res := append(bson.D{}, doc...)

	for _, b := range bools {
		for _, el := range b {
			if _, dup := seen[el.Key]; dup {
				return nil, false
			}

			seen[el.Key] = struct{}{}
			res = append(res, el)
		}
	}

	return res, true
}

// compile renders the whole frame, applying negation last.
func (f *frame) compile() bson.D {
	var expr bson.D

	if !f.or {
		expr = f.compileCur()
	} else {
		members := append(bson.A{}, f.members...)

		if cur := f.compileCur(); len(cur) > 0 {
			if nested, ok := orMembers(cur); ok {
				members = append(members, nested...)
			} else {
				members = append(members, cur)
			}
		}

		switch len(members) {
		case 0:
		case 1:
			expr, _ = members[0].(bson.D)
		default:
			expr = bson.D{{Key: OpOr, Value: members}}
		}
	}

	if len(expr) == 0 || !f.negate {
		return expr
	}

	// NOT over an OR list is exactly NOR
	if len(expr) == 1 && expr[0].Key == OpOr {
		return bson.D{{Key: OpNor, Value: expr[0].Value}}
	}

	return bson.D{{Key: OpNor, Value: bson.A{expr}}}
}

// orMembers returns the expression's branches when it is a bare OR list.
func orMembers(expr bson.D) (bson.A, bool) {
	if len(expr) == 1 && expr[0].Key == OpOr {
		members, ok := expr[0].Value.(bson.A)
		return members, ok
	}

	return nil, false
}

// plainDoc reports whether the expression is a plain field document
// with no top-level boolean combinators.
func plainDoc(expr bson.D) bool {
	for _, el := range expr {
		switch el.Key {
		case OpAnd, OpOr, OpNor:
			return false
		}
	}

	return true
}
