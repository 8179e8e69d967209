package marlin

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/driver"
)

// Administrative operations. Schema-mutating commands invalidate the
// introspection cache for the affected collections.

// ListCollections returns the listing documents of every collection of the
// database.
func (c *Conn) ListCollections(ctx context.Context) (*Result, error) {
	cmd := bson.D{
		{Key: driver.VerbListCollections, Value: int32(1)},
		{Key: "cursor", Value: bson.D{}},
	}

	_, res, err := c.command(ctx, c.exec, cmd)

	return res, err
}

// CollectionNames returns the names of every collection of the database.
func (c *Conn) CollectionNames(ctx context.Context) ([]string, error) {
	res, err := c.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	if res.Err != nil {
		return nil, res.Err
	}

	names := make([]string, 0, len(res.Docs))

	for _, doc := range res.Docs {
		for _, el := range doc {
			if el.Key == "name" {
				if name, ok := el.Value.(string); ok {
					names = append(names, name)
				}
			}
		}
	}

	return names, nil
}

// CollectionExists reports whether the collection exists.
func (c *Conn) CollectionExists(ctx context.Context, name string) (bool, error) {
	cmd := bson.D{
		{Key: driver.VerbListCollections, Value: int32(1)},
		{Key: "filter", Value: bson.D{{Key: "name", Value: name}}},
		{Key: "cursor", Value: bson.D{}},
	}

	er, _, err := c.command(ctx, c.exec, cmd)
	if er == nil {
		return false, err
	}

	return len(er.Docs) > 0, nil
}

// CreateCollection creates a collection, optionally attaching a validator
// schema.
func (c *Conn) CreateCollection(ctx context.Context, name string, validator bson.D) (*Result, error) {
	cmd := bson.D{{Key: driver.VerbCreate, Value: name}}

	if len(validator) > 0 {
		cmd = append(cmd, bson.E{
			Key:   "validator",
			Value: bson.D{{Key: "$jsonSchema", Value: validator}},
		})
	}

	_, res, err := c.command(ctx, c.exec, cmd, name)

	return res, err
}

// DropCollection removes a collection.
func (c *Conn) DropCollection(ctx context.Context, name string) (*Result, error) {
	cmd := bson.D{{Key: driver.VerbDrop, Value: name}}

	_, res, err := c.command(ctx, c.exec, cmd, name)

	return res, err
}

// RenameCollection renames a collection. The command runs against the
// admin database and takes fully qualified names.
func (c *Conn) RenameCollection(ctx context.Context, from, to string) (*Result, error) {
	cmd := bson.D{
		{Key: driver.VerbRenameCollection, Value: c.database + "." + from},
		{Key: "to", Value: c.database + "." + to},
	}

	_, res, err := c.command(ctx, c.admin, cmd, from, to)

	return res, err
}

// CreateIndex creates one index over the given key document.
// An empty index name derives one from the key fields.
func (c *Conn) CreateIndex(ctx context.Context, table string, keys bson.D, name string, unique bool) (*Result, error) {
	if len(keys) == 0 {
		return c.fail(driver.NewValidationError("index requires at least one key field"))
	}

	if name == "" {
		for _, el := range keys {
			if name != "" {
				name += "_"
			}

			name += el.Key
		}
	}

	index := bson.D{
		{Key: "key", Value: keys},
		{Key: "name", Value: name},
	}

	if unique {
		index = append(index, bson.E{Key: "unique", Value: true})
	}

	cmd := bson.D{
		{Key: driver.VerbCreateIndexes, Value: table},
		{Key: "indexes", Value: bson.A{index}},
	}

	_, res, err := c.command(ctx, c.exec, cmd, table)

	return res, err
}

// DropIndex removes one index by name.
func (c *Conn) DropIndex(ctx context.Context, table, name string) (*Result, error) {
	cmd := bson.D{
		{Key: driver.VerbDropIndexes, Value: table},
		{Key: "index", Value: name},
	}

	_, res, err := c.command(ctx, c.exec, cmd, table)

	return res, err
}

// ListIndexes returns the index listing documents of a collection.
func (c *Conn) ListIndexes(ctx context.Context, table string) (*Result, error) {
	cmd := bson.D{
		{Key: driver.VerbListIndexes, Value: table},
		{Key: "cursor", Value: bson.D{}},
	}

	_, res, err := c.command(ctx, c.exec, cmd)

	return res, err
}

// ModifyCollection replaces the validator schema of a collection.
func (c *Conn) ModifyCollection(ctx context.Context, name string, validator bson.D) (*Result, error) {
	cmd := bson.D{
		{Key: driver.VerbCollMod, Value: name},
		{Key: "validator", Value: bson.D{{Key: "$jsonSchema", Value: validator}}},
	}

	_, res, err := c.command(ctx, c.exec, cmd, name)

	return res, err
}

// command runs one administrative command and normalizes the outcome,
// dropping the named collections from the introspection cache when the
// command succeeds and mutates schema.
func (c *Conn) command(ctx context.Context, e *driver.Executor, cmd bson.D, invalidate ...string) (*driver.ExecuteResult, *Result, error) {
	er, err := e.Execute(ctx, &driver.ExecuteParams{Command: cmd})
	if err != nil {
		res, ferr := c.fail(err)
		return nil, res, ferr
	}

	if driver.SchemaMutating(driver.Verb(cmd)) {
		for _, name := range invalidate {
			c.cache.Invalidate(name)
		}
	}

	c.record(nil)

	return er, &Result{
		OK:       true,
		Docs:     er.Docs,
		Affected: er.Affected,
	}, nil
}
