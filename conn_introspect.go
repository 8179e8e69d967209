package marlin

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/driver"
	"github.com/marlindb/marlin/internal/schema"
)

// Introspection. Collection info is assembled from listCollections and
// listIndexes responses and cached; administrative commands invalidate the
// cache entries they touch.

// FieldData returns the per-field introspection view of a collection.
func (c *Conn) FieldData(ctx context.Context, table string) ([]schema.FieldInfo, error) {
	info, err := c.collectionInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	return info.Fields, nil
}

// FieldNames returns the declared field names of a collection.
func (c *Conn) FieldNames(ctx context.Context, table string) ([]string, error) {
	info, err := c.collectionInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(info.Fields))
	for _, f := range info.Fields {
		names = append(names, f.Name)
	}

	return names, nil
}

// FieldExists reports whether a collection declares the given field.
func (c *Conn) FieldExists(ctx context.Context, field, table string) (bool, error) {
	info, err := c.collectionInfo(ctx, table)
	if err != nil {
		return false, err
	}

	for _, f := range info.Fields {
		if f.Name == field {
			return true, nil
		}
	}

	return false, nil
}

// IndexData returns the per-index introspection view of a collection.
func (c *Conn) IndexData(ctx context.Context, table string) ([]schema.IndexInfo, error) {
	info, err := c.collectionInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	return info.Indexes, nil
}

// CollectionSchema returns the validator schema of a collection for use
// with Builder.WithSchema, or nil when the collection has none.
func (c *Conn) CollectionSchema(ctx context.Context, table string) (*schema.Schema, error) {
	info, err := c.collectionInfo(ctx, table)
	if err != nil {
		return nil, err
	}

	return info.Schema, nil
}

// collectionInfo returns the introspection info of one collection, served
// from the cache when possible.
func (c *Conn) collectionInfo(ctx context.Context, name string) (*schema.CollectionInfo, error) {
	if info, ok := c.cache.Get(name); ok {
		return info, nil
	}

	cmd := bson.D{
		{Key: driver.VerbListCollections, Value: int32(1)},
		{Key: "filter", Value: bson.D{{Key: "name", Value: name}}},
		{Key: "cursor", Value: bson.D{}},
	}

	er, err := c.exec.Execute(ctx, &driver.ExecuteParams{Command: cmd})
	if err != nil {
		return nil, err
	}

	if len(er.Docs) == 0 {
		return nil, driver.NewValidationError("collection %q does not exist", name)
	}

	info := schema.CollectionFromListing(er.Docs[0])

	cmd = bson.D{
		{Key: driver.VerbListIndexes, Value: name},
		{Key: "cursor", Value: bson.D{}},
	}

	if er, err = c.exec.Execute(ctx, &driver.ExecuteParams{Command: cmd}); err == nil {
		info.Indexes = schema.IndexesFromListing(er.Docs)
	}

	c.cache.Put(name, info)

	return info, nil
}
