package clause

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/util/testutil"
)

func TestDocMerge(t *testing.T) {
	t.Parallel()

	d := NewDoc()
	d.Add("age", Comparison{Op: OpGt, Val: int32(25)})
	d.Add("age", Comparison{Op: OpLt, Val: int32(60)})
	d.Add("name", Equality{Val: "alice"})
	d.Add("age", Comparison{Op: OpGt, Val: int32(30)}) // replaces the $gt

	testutil.AssertEqual(t, bson.D{
		{Key: "age", Value: bson.D{
			{Key: "$gt", Value: int32(30)},
			{Key: "$lt", Value: int32(60)},
		}},
		{Key: "name", Value: "alice"},
	}, d.BSON())
}

func TestDocFieldReuse(t *testing.T) {
	t.Parallel()

	d := NewDoc()
	d.Add("name", Equality{Val: "alice"})
	d.Add("age", Comparison{Op: OpGt, Val: int32(25)})

	// a repeated field finds its existing entry and keeps its first-seen
	// position; a new field appends
	d.Add("age", Comparison{Op: OpLte, Val: int32(60)})
	d.Add("city", Equality{Val: "tokyo"})

	testutil.AssertEqual(t, bson.D{
		{Key: "name", Value: "alice"},
		{Key: "age", Value: bson.D{
			{Key: "$gt", Value: int32(25)},
			{Key: "$lte", Value: int32(60)},
		}},
		{Key: "city", Value: "tokyo"},
	}, d.BSON())
}

func TestDocRawReplacesEntry(t *testing.T) {
	t.Parallel()

	d := NewDoc()
	d.Add("age", Comparison{Op: OpGt, Val: int32(25)})
	d.Add("age", Raw{Doc: bson.D{{Key: "$mod", Value: bson.A{int32(2), int32(0)}}}})

	testutil.AssertEqual(t, bson.D{
		{Key: "age", Value: bson.D{{Key: "$mod", Value: bson.A{int32(2), int32(0)}}}},
	}, d.BSON())

	// and a later predicate replaces the raw entry
	d.Add("age", Equality{Val: int32(7)})

	testutil.AssertEqual(t, bson.D{{Key: "age", Value: int32(7)}}, d.BSON())
}

func TestDocMergeBSON(t *testing.T) {
	t.Parallel()

	d := NewDoc()
	d.Add("age", Comparison{Op: OpGt, Val: int32(25)})

	d.MergeBSON(bson.D{
		{Key: "age", Value: bson.D{{Key: "$lt", Value: int32(60)}}},
		{Key: "name", Value: "alice"},
	})

	testutil.AssertEqual(t, bson.D{
		{Key: "age", Value: bson.D{
			{Key: "$gt", Value: int32(25)},
			{Key: "$lt", Value: int32(60)},
		}},
		{Key: "name", Value: "alice"},
	}, d.BSON())
}

func TestDocClone(t *testing.T) {
	t.Parallel()

	d := NewDoc()
	d.Add("a", Equality{Val: int32(1)})

	c := d.Clone()
	c.Add("b", Equality{Val: int32(2)})
	c.Add("a", Equality{Val: int32(3)})

	testutil.AssertEqual(t, bson.D{{Key: "a", Value: int32(1)}}, d.BSON())
	testutil.AssertEqual(t, bson.D{
		{Key: "a", Value: int32(3)},
		{Key: "b", Value: int32(2)},
	}, c.BSON())
}
