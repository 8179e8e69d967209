package clause

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Update operators.
// https://www.mongodb.com/docs/manual/reference/operator/update/
const (
	// UpdateSet sets the value of a field.
	UpdateSet = "$set"

	// UpdateInc increments the value of a field by a delta.
	UpdateInc = "$inc"

	// UpdateUnset removes a field.
	UpdateUnset = "$unset"

	// UpdateSetOnInsert sets the value of a field only when an upsert inserts.
	UpdateSetOnInsert = "$setOnInsert"

	// UpdatePush appends a value to an array field.
	UpdatePush = "$push"

	// UpdatePull removes matching values from an array field.
	UpdatePull = "$pull"

	// UpdateAddToSet appends a value to an array field unless already present.
	UpdateAddToSet = "$addToSet"
)

// Update is an ordered update document under construction.
//
// Operators keep their first-seen position, fields keep their first-seen
// position within an operator, and the last value written for an
// (operator, field) pair wins.
type Update struct {
	sections []*updateSection
}

// updateSection holds the field mapping of a single update operator.
type updateSection struct {
	op     string
	fields bson.D
}

// NewUpdate creates an empty update document.
func NewUpdate() *Update {
	return new(Update)
}

// Add merges one field assignment under the given operator.
func (u *Update) Add(op, field string, value any) {
	section := u.section(op)
	if section == nil {
		section = &updateSection{op: op}
		u.sections = append(u.sections, section)
	}

	for i, el := range section.fields {
		if el.Key == field {
			section.fields[i].Value = value
			return
		}
	}

	section.fields = append(section.fields, bson.E{Key: field, Value: value})
}

// section returns the section for the operator, or nil.
func (u *Update) section(op string) *updateSection {
	for _, s := range u.sections {
		if s.op == op {
			return s
		}
	}

	return nil
}

// Section returns the accumulated field assignments of one operator,
// or nil.
func (u *Update) Section(op string) bson.D {
	if s := u.section(op); s != nil {
		return s.fields
	}

	return nil
}

// Empty reports whether no assignments have been accumulated.
func (u *Update) Empty() bool {
	return len(u.sections) == 0
}

// Reset discards all accumulated assignments.
func (u *Update) Reset() {
	u.sections = nil
}

// BSON serializes the update document.
func (u *Update) BSON() bson.D {
	res := make(bson.D, 0, len(u.sections))

	for _, s := range u.sections {
		res = append(res, bson.E{Key: s.op, Value: s.fields})
	}

	return res
}
