package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/marlindb/marlin/internal/util/testutil"
)

// fakeRunner records every dispatched command and replays canned responses.
type fakeRunner struct {
	responses []bson.D
	err       error
	commands  []bson.D
}

// RunCommand implements Runner.
func (r *fakeRunner) RunCommand(_ context.Context, cmd bson.D) (bson.D, error) {
	r.commands = append(r.commands, cmd)

	if r.err != nil {
		return nil, r.err
	}

	if len(r.responses) == 0 {
		return nil, errors.New("fakeRunner: no canned response left")
	}

	resp := r.responses[0]
	r.responses = r.responses[1:]

	return resp, nil
}

func newTestExecutor(tb testing.TB, r Runner) *Executor {
	tb.Helper()

	return NewExecutor(&NewExecutorParams{
		Runner: r,
		L:      testutil.Logger(tb),
	})
}

func TestExecuteRead(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []bson.D{{
		{Key: "cursor", Value: bson.D{
			{Key: "firstBatch", Value: bson.A{
				bson.D{{Key: "_id", Value: int32(1)}},
				bson.D{{Key: "_id", Value: int32(2)}},
			}},
			{Key: "id", Value: int64(0)},
			{Key: "ns", Value: "db.users"},
		}},
		{Key: "ok", Value: float64(1)},
	}}}

	e := newTestExecutor(t, r)

	res, err := e.Execute(context.Background(), &ExecuteParams{
		Command: bson.D{{Key: "find", Value: "users"}},
	})
	require.NoError(t, err)

	assert.Equal(t, KindRead, res.Kind)
	require.Len(t, res.Docs, 2)
	require.Len(t, r.commands, 1)
}

func TestExecuteGetMoreDrain(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []bson.D{
		{
			{Key: "cursor", Value: bson.D{
				{Key: "firstBatch", Value: bson.A{bson.D{{Key: "_id", Value: int32(1)}}}},
				{Key: "id", Value: int64(42)},
				{Key: "ns", Value: "db.users"},
			}},
			{Key: "ok", Value: float64(1)},
		},
		{
			{Key: "cursor", Value: bson.D{
				{Key: "nextBatch", Value: bson.A{bson.D{{Key: "_id", Value: int32(2)}}}},
				{Key: "id", Value: int64(0)},
			}},
			{Key: "ok", Value: float64(1)},
		},
	}}

	e := newTestExecutor(t, r)

	res, err := e.Execute(context.Background(), &ExecuteParams{
		Command: bson.D{{Key: "find", Value: "users"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Docs, 2)

	// the continuation batch was fetched through getMore on the same cursor
	require.Len(t, r.commands, 2)
	testutil.AssertEqual(t, bson.D{
		{Key: "getMore", Value: int64(42)},
		{Key: "collection", Value: "users"},
	}, r.commands[1])
}

func TestExecuteWriteMetadata(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		cmd      bson.D
		resp     bson.D
		affected int64
		inserted any
	}{
		"InsertN": {
			cmd: bson.D{
				{Key: "insert", Value: "users"},
				{Key: "documents", Value: bson.A{bson.D{{Key: "_id", Value: int32(7)}}}},
			},
			resp:     bson.D{{Key: "n", Value: int32(1)}, {Key: "ok", Value: float64(1)}},
			affected: 1,
			inserted: int32(7),
		},
		"InsertedIDsWin": {
			cmd: bson.D{
				{Key: "insert", Value: "users"},
				{Key: "documents", Value: bson.A{bson.D{{Key: "_id", Value: int32(7)}}}},
			},
			resp: bson.D{
				{Key: "n", Value: int32(1)},
				{Key: "insertedIds", Value: bson.A{int32(9)}},
				{Key: "ok", Value: float64(1)},
			},
			affected: 1,
			inserted: int32(9),
		},
		"UpdatePrefersN": {
			cmd: bson.D{
				{Key: "update", Value: "users"},
				{Key: "updates", Value: bson.A{bson.D{
					{Key: "q", Value: bson.D{{Key: "a", Value: int32(1)}}},
					{Key: "u", Value: bson.D{{Key: "$set", Value: bson.D{{Key: "b", Value: int32(2)}}}}},
					{Key: "multi", Value: true},
				}}},
			},
			resp: bson.D{
				{Key: "n", Value: int32(3)},
				{Key: "nModified", Value: int32(2)},
				{Key: "ok", Value: float64(1)},
			},
			affected: 3,
		},
		"UpsertedID": {
			cmd: bson.D{
				{Key: "update", Value: "users"},
				{Key: "updates", Value: bson.A{bson.D{
					{Key: "q", Value: bson.D{{Key: "a", Value: int32(1)}}},
					{Key: "u", Value: bson.D{{Key: "$set", Value: bson.D{{Key: "b", Value: int32(2)}}}}},
					{Key: "multi", Value: true},
					{Key: "upsert", Value: true},
				}}},
			},
			resp: bson.D{
				{Key: "n", Value: int32(1)},
				{Key: "upserted", Value: bson.A{bson.D{
					{Key: "index", Value: int32(0)},
					{Key: "_id", Value: int32(11)},
				}}},
				{Key: "ok", Value: float64(1)},
			},
			affected: 1,
			inserted: int32(11),
		},
		"DeletedCountFallback": {
			cmd: bson.D{
				{Key: "delete", Value: "users"},
				{Key: "deletes", Value: bson.A{bson.D{
					{Key: "q", Value: bson.D{{Key: "a", Value: int32(1)}}},
					{Key: "limit", Value: int32(0)},
				}}},
			},
			resp:     bson.D{{Key: "deletedCount", Value: int32(4)}, {Key: "ok", Value: float64(1)}},
			affected: 4,
		},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := &fakeRunner{responses: []bson.D{tc.resp}}
			e := newTestExecutor(t, r)

			res, err := e.Execute(context.Background(), &ExecuteParams{Command: tc.cmd})
			require.NoError(t, err)

			assert.Equal(t, KindWrite, res.Kind)
			assert.Equal(t, tc.affected, res.Affected)
			assert.Equal(t, tc.inserted, res.InsertedID)
		})
	}
}

func TestExecuteNoFilterWriteGuard(t *testing.T) {
	t.Parallel()

	deleteAll := bson.D{
		{Key: "delete", Value: "users"},
		{Key: "deletes", Value: bson.A{bson.D{
			{Key: "q", Value: bson.D{}},
			{Key: "limit", Value: int32(0)},
		}}},
	}

	t.Run("Refused", func(t *testing.T) {
		t.Parallel()

		r := new(fakeRunner)
		e := newTestExecutor(t, r)

		_, err := e.Execute(context.Background(), &ExecuteParams{Command: deleteAll})
		require.Error(t, err)
		require.NotNil(t, As(err))
		assert.Equal(t, CategoryUnsafe, As(err).Category)

		// refused before any network round-trip
		assert.Empty(t, r.commands)
	})

	t.Run("UpdateAllRefused", func(t *testing.T) {
		t.Parallel()

		r := new(fakeRunner)
		e := newTestExecutor(t, r)

		_, err := e.Execute(context.Background(), &ExecuteParams{Command: bson.D{
			{Key: "update", Value: "users"},
			{Key: "updates", Value: bson.A{bson.D{
				{Key: "q", Value: bson.D{}},
				{Key: "u", Value: bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: int32(1)}}}}},
				{Key: "multi", Value: true},
			}}},
		}})
		require.Error(t, err)
		assert.Equal(t, CategoryUnsafe, As(err).Category)
		assert.Empty(t, r.commands)
	})

	t.Run("Allowed", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{responses: []bson.D{{
			{Key: "n", Value: int32(10)},
			{Key: "ok", Value: float64(1)},
		}}}
		e := newTestExecutor(t, r)

		res, err := e.Execute(context.Background(), &ExecuteParams{
			Command:            deleteAll,
			AllowNoFilterWrite: true,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10), res.Affected)
		assert.Len(t, r.commands, 1)
	})

	t.Run("ReplaceAllRefused", func(t *testing.T) {
		t.Parallel()

		r := new(fakeRunner)
		e := newTestExecutor(t, r)

		// a whole-document replacement carries no $-operators
		_, err := e.Execute(context.Background(), &ExecuteParams{Command: bson.D{
			{Key: "update", Value: "users"},
			{Key: "updates", Value: bson.A{bson.D{
				{Key: "q", Value: bson.D{}},
				{Key: "u", Value: bson.D{{Key: "name", Value: "alice"}}},
				{Key: "multi", Value: false},
			}}},
		}})
		require.Error(t, err)
		assert.Equal(t, CategoryUnsafe, As(err).Category)
		assert.Empty(t, r.commands)
	})

	t.Run("ReplaceWithFilterNotGuarded", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{responses: []bson.D{{
			{Key: "n", Value: int32(1)},
			{Key: "ok", Value: float64(1)},
		}}}
		e := newTestExecutor(t, r)

		_, err := e.Execute(context.Background(), &ExecuteParams{Command: bson.D{
			{Key: "update", Value: "users"},
			{Key: "updates", Value: bson.A{bson.D{
				{Key: "q", Value: bson.D{{Key: "_id", Value: int32(1)}}},
				{Key: "u", Value: bson.D{{Key: "name", Value: "alice"}}},
				{Key: "multi", Value: false},
			}}},
		}})
		require.NoError(t, err)
		assert.Len(t, r.commands, 1)
	})

	t.Run("SingleDocumentUpdateNotGuarded", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{responses: []bson.D{{
			{Key: "n", Value: int32(1)},
			{Key: "ok", Value: float64(1)},
		}}}
		e := newTestExecutor(t, r)

		_, err := e.Execute(context.Background(), &ExecuteParams{Command: bson.D{
			{Key: "update", Value: "users"},
			{Key: "updates", Value: bson.A{bson.D{
				{Key: "q", Value: bson.D{}},
				{Key: "u", Value: bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: int32(1)}}}}},
				{Key: "multi", Value: false},
			}}},
		}})
		require.NoError(t, err)
	})
}

func TestExecuteResponseError(t *testing.T) {
	t.Parallel()

	t.Run("NotOK", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{responses: []bson.D{{
			{Key: "ok", Value: float64(0)},
			{Key: "errmsg", Value: "ns not found"},
			{Key: "code", Value: int32(26)},
		}}}
		e := newTestExecutor(t, r)

		_, err := e.Execute(context.Background(), &ExecuteParams{
			Command: bson.D{{Key: "drop", Value: "missing"}},
		})
		require.Error(t, err)

		se := As(err)
		require.NotNil(t, se)
		assert.Equal(t, CategoryServer, se.Category)
		assert.Equal(t, int32(26), se.Code)
		assert.Equal(t, "ns not found", se.Message)
	})

	t.Run("WriteErrors", func(t *testing.T) {
		t.Parallel()

		r := &fakeRunner{responses: []bson.D{{
			{Key: "n", Value: int32(0)},
			{Key: "writeErrors", Value: bson.A{bson.D{
				{Key: "index", Value: int32(0)},
				{Key: "code", Value: int32(11000)},
				{Key: "errmsg", Value: "duplicate key"},
			}}},
			{Key: "ok", Value: float64(1)},
		}}}
		e := newTestExecutor(t, r)

		_, err := e.Execute(context.Background(), &ExecuteParams{Command: bson.D{
			{Key: "insert", Value: "users"},
			{Key: "documents", Value: bson.A{bson.D{{Key: "_id", Value: int32(1)}}}},
		}})
		require.Error(t, err)

		se := As(err)
		require.NotNil(t, se)
		assert.Equal(t, int32(11000), se.Code)
	})
}

func TestExecuteEmptyCommand(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, new(fakeRunner))

	_, err := e.Execute(context.Background(), &ExecuteParams{})
	require.Error(t, err)
	assert.Equal(t, CategoryValidation, As(err).Category)
}

func TestExecuteConvertsLiterals(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{responses: []bson.D{{
		{Key: "n", Value: int32(1)},
		{Key: "ok", Value: float64(1)},
	}}}
	e := newTestExecutor(t, r)

	_, err := e.Execute(context.Background(), &ExecuteParams{Command: bson.D{
		{Key: "delete", Value: "users"},
		{Key: "deletes", Value: bson.A{bson.D{
			{Key: "q", Value: bson.D{{Key: "_id", Value: bson.D{{Key: "oid", Value: "507f1f77bcf86cd799439011"}}}}},
			{Key: "limit", Value: int32(0)},
		}}},
	}})
	require.NoError(t, err)
	require.Len(t, r.commands, 1)

	oid, err := primitive.ObjectIDFromHex("507f1f77bcf86cd799439011")
	require.NoError(t, err)

	deletes, ok := r.commands[0][1].Value.(bson.A)
	require.True(t, ok)

	q := deletes[0].(bson.D)[0].Value.(bson.D)
	assert.Equal(t, oid, q[0].Value)
}

func TestExecuteSessionReleased(t *testing.T) {
	t.Parallel()

	r := new(fakeRunner)
	e := newTestExecutor(t, r)

	sess := NewSession(nil)
	require.NoError(t, sess.Commit(context.Background()))

	_, err := e.Execute(context.Background(), &ExecuteParams{
		Command: bson.D{{Key: "find", Value: "users"}},
		Session: sess,
	})
	require.ErrorIs(t, err, ErrSessionReleased)
	assert.Empty(t, r.commands)
}
