package driver

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/marlindb/marlin/internal/util/lazyerrors"
)

// Runner executes a single database command and returns its reply document.
//
// Implementations own the transport; the executor owns everything else.
type Runner interface {
	RunCommand(ctx context.Context, cmd bson.D) (bson.D, error)
}

// MongoRunner implements Runner on a database handle.
type MongoRunner struct {
	db *mongo.Database
}

// NewMongoRunner creates a Runner for the given client and database name.
func NewMongoRunner(client *mongo.Client, database string) *MongoRunner {
	return &MongoRunner{db: client.Database(database)}
}

// RunCommand implements Runner.
//
// A command the server rejected is returned as a structured *Error carrying
// the server's code and message unchanged.
func (r *MongoRunner) RunCommand(ctx context.Context, cmd bson.D) (bson.D, error) {
	var res bson.D

	err := r.db.RunCommand(ctx, cmd).Decode(&res)
	if err == nil {
		return res, nil
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return nil, NewServerError(ce.Code, ce.Message)
	}

	var we mongo.WriteException
	if errors.As(err, &we) && len(we.WriteErrors) > 0 {
		return nil, NewServerError(int32(we.WriteErrors[0].Code), we.WriteErrors[0].Message)
	}

	return nil, lazyerrors.Error(err)
}

// check interfaces
var (
	_ Runner = (*MongoRunner)(nil)
)
