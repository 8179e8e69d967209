package schema

import (
	"sort"

	"github.com/AlekSi/pointer"
	"go.mongodb.org/mongo-driver/bson"
)

// FieldInfo is the per-field introspection view.
//
// Declared type and maximum length are nil when the collection has no
// validator schema or the schema does not declare them.
//
//nolint:vet // for readability
type FieldInfo struct {
	Name      string
	Type      *string
	MaxLength *int32
	Default   any
	Nullable  bool
	Primary   bool
}

// IndexKeyPair consists of a field name and a sort order that are part of
// the index.
type IndexKeyPair struct {
	Field      string
	Descending bool
}

// IndexInfo is the per-index introspection view.
type IndexInfo struct {
	Name   string
	Key    []IndexKeyPair
	Unique bool
}

// CollectionInfo combines everything introspection knows about a collection.
//
// CollectionInfo values should be treated as immutable so cached copies can
// be shared; replace the whole value instead of modifying fields.
type CollectionInfo struct {
	Name    string
	Schema  *Schema
	Fields  []FieldInfo
	Indexes []IndexInfo
}

// CollectionFromListing builds collection info from a single listCollections
// response entry. Collections without a validator yield info with a nil
// schema and the _id field only.
func CollectionFromListing(doc bson.D) *CollectionInfo {
	name, _ := lookup(doc, "name").(string)

	var s *Schema
	if options, ok := lookup(doc, "options").(bson.D); ok {
		if validator, ok := lookup(options, "validator").(bson.D); ok {
			if js, ok := lookup(validator, "$jsonSchema").(bson.D); ok {
				s = FromValidator(js)
			}
		}
	}

	info := &CollectionInfo{
		Name:   name,
		Schema: s,
	}

	if s.Field("_id") == nil {
		info.Fields = append(info.Fields, FieldInfo{
			Name:    "_id",
			Type:    pointer.ToString("objectId"),
			Primary: true,
		})
	}

	for _, f := range s.Fields() {
		fi := FieldInfo{
			Name:     f.Name,
			Default:  f.Default,
			Nullable: f.Nullable,
			Primary:  f.Name == "_id",
		}

		if f.Type != "" {
			fi.Type = pointer.ToString(f.Type)
		}

		if f.MaxLength > 0 {
			fi.MaxLength = pointer.ToInt32(f.MaxLength)
		}

		info.Fields = append(info.Fields, fi)
	}

	return info
}

// IndexesFromListing builds index info from listIndexes response documents,
// sorted by name for deterministic output.
func IndexesFromListing(docs []bson.D) []IndexInfo {
	res := make([]IndexInfo, 0, len(docs))

	for _, doc := range docs {
		info := IndexInfo{}
		info.Name, _ = lookup(doc, "name").(string)
		info.Unique, _ = lookup(doc, "unique").(bool)

		if key, ok := lookup(doc, "key").(bson.D); ok {
			info.Key = make([]IndexKeyPair, 0, len(key))

			for _, el := range key {
				pair := IndexKeyPair{Field: el.Key}

				switch dir := el.Value.(type) {
				case int32:
					pair.Descending = dir < 0
				case int64:
					pair.Descending = dir < 0
				case float64:
					pair.Descending = dir < 0
				}

				info.Key = append(info.Key, pair)
			}
		}

		res = append(res, info)
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })

	return res
}
