package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestVerb(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "find", Verb(bson.D{{Key: "find", Value: "users"}, {Key: "limit", Value: int64(1)}}))
	assert.Equal(t, "", Verb(bson.D{}))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		cmd      bson.D
		expected Kind
	}{
		"Find":            {bson.D{{Key: "find", Value: "users"}}, KindRead},
		"Count":           {bson.D{{Key: "count", Value: "users"}}, KindRead},
		"Distinct":        {bson.D{{Key: "distinct", Value: "users"}}, KindRead},
		"GetMore":         {bson.D{{Key: "getMore", Value: int64(7)}}, KindRead},
		"ListCollections": {bson.D{{Key: "listCollections", Value: int32(1)}}, KindRead},
		"Insert":          {bson.D{{Key: "insert", Value: "users"}}, KindWrite},
		"Update":          {bson.D{{Key: "update", Value: "users"}}, KindWrite},
		"Delete":          {bson.D{{Key: "delete", Value: "users"}}, KindWrite},
		"FindAndModify":   {bson.D{{Key: "findAndModify", Value: "users"}}, KindWrite},
		"Create":          {bson.D{{Key: "create", Value: "users"}}, KindWrite},
		"Drop":            {bson.D{{Key: "drop", Value: "users"}}, KindWrite},
		"Rename":          {bson.D{{Key: "renameCollection", Value: "db.users"}}, KindWrite},
		"Aggregate": {
			bson.D{
				{Key: "aggregate", Value: "users"},
				{Key: "pipeline", Value: bson.A{bson.D{{Key: "$match", Value: bson.D{}}}}},
			},
			KindRead,
		},
		"AggregateOut": {
			bson.D{
				{Key: "aggregate", Value: "users"},
				{Key: "pipeline", Value: bson.A{
					bson.D{{Key: "$match", Value: bson.D{}}},
					bson.D{{Key: "$out", Value: "archive"}},
				}},
			},
			KindWrite,
		},
		"AggregateOutSpelledBare": {
			bson.D{
				{Key: "aggregate", Value: "users"},
				{Key: "pipeline", Value: bson.A{bson.D{{Key: "out", Value: "archive"}}}},
			},
			KindWrite,
		},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, Classify(tc.cmd))
		})
	}
}

func TestSchemaMutating(t *testing.T) {
	t.Parallel()

	assert.True(t, SchemaMutating(VerbCreate))
	assert.True(t, SchemaMutating(VerbDrop))
	assert.True(t, SchemaMutating(VerbCreateIndexes))
	assert.True(t, SchemaMutating(VerbRenameCollection))
	assert.False(t, SchemaMutating(VerbInsert))
	assert.False(t, SchemaMutating(VerbFind))
}
