package clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/util/testutil"
)

func TestUpdate(t *testing.T) {
	t.Parallel()

	u := NewUpdate()
	assert.True(t, u.Empty())

	u.Add(UpdateSet, "name", "alice")
	u.Add(UpdateInc, "visits", int64(1))
	u.Add(UpdateSet, "state", "active")
	u.Add(UpdateSet, "name", "bob") // last write wins
	u.Add(UpdateUnset, "tmp", "")

	assert.False(t, u.Empty())

	testutil.AssertEqual(t, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "name", Value: "bob"},
			{Key: "state", Value: "active"},
		}},
		{Key: "$inc", Value: bson.D{{Key: "visits", Value: int64(1)}}},
		{Key: "$unset", Value: bson.D{{Key: "tmp", Value: ""}}},
	}, u.BSON())
}

func TestUpdateSection(t *testing.T) {
	t.Parallel()

	u := NewUpdate()
	u.Add(UpdateSet, "a", int32(1))
	u.Add(UpdatePush, "tags", "x")

	testutil.AssertEqual(t, bson.D{{Key: "a", Value: int32(1)}}, u.Section(UpdateSet))
	assert.Nil(t, u.Section(UpdateInc))
}

func TestUpdateReset(t *testing.T) {
	t.Parallel()

	u := NewUpdate()
	u.Add(UpdateSet, "a", int32(1))
	u.Reset()

	assert.True(t, u.Empty())
	assert.Empty(t, u.BSON())
}
