package driver

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Command verbs handled by this layer. The verb is the first key of a
// command document.
const (
	VerbFind             = "find"
	VerbAggregate        = "aggregate"
	VerbCount            = "count"
	VerbDistinct         = "distinct"
	VerbGetMore          = "getMore"
	VerbInsert           = "insert"
	VerbUpdate           = "update"
	VerbDelete           = "delete"
	VerbFindAndModify    = "findAndModify"
	VerbCreate           = "create"
	VerbDrop             = "drop"
	VerbCreateIndexes    = "createIndexes"
	VerbDropIndexes      = "dropIndexes"
	VerbRenameCollection = "renameCollection"
	VerbCollMod          = "collMod"
	VerbListCollections  = "listCollections"
	VerbListIndexes      = "listIndexes"
)

// Kind classifies a command as a read or a write.
type Kind int

// Command kinds.
const (
	KindRead Kind = iota
	KindWrite
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == KindWrite {
		return "write"
	}

	return "read"
}

// writeVerbs are commands that mutate data or schema.
var writeVerbs = map[string]struct{}{
	VerbInsert:           {},
	VerbUpdate:           {},
	VerbDelete:           {},
	VerbFindAndModify:    {},
	VerbCreate:           {},
	VerbDrop:             {},
	VerbCreateIndexes:    {},
	VerbDropIndexes:      {},
	VerbRenameCollection: {},
	VerbCollMod:          {},
}

// schemaMutatingVerbs are writes that change collection or index structure;
// any introspection cache must be invalidated after them.
var schemaMutatingVerbs = map[string]struct{}{
	VerbCreate:           {},
	VerbDrop:             {},
	VerbCreateIndexes:    {},
	VerbDropIndexes:      {},
	VerbRenameCollection: {},
	VerbCollMod:          {},
}

// Verb returns the command verb: the first key of the document.
func Verb(cmd bson.D) string {
	if len(cmd) == 0 {
		return ""
	}

	return cmd[0].Key
}

// Classify determines whether the command is a read or a write.
//
// An aggregate is a write only when its pipeline carries an
// output-materialization stage; everything not in the write set, including
// find, count and the listing commands, is a read.
func Classify(cmd bson.D) Kind {
	verb := Verb(cmd)

	if _, ok := writeVerbs[verb]; ok {
		return KindWrite
	}

	if verb == VerbAggregate && aggregateWrites(cmd) {
		return KindWrite
	}

	return KindRead
}

// SchemaMutating reports whether the verb changes collection or index
// structure.
func SchemaMutating(verb string) bool {
	_, ok := schemaMutatingVerbs[verb]
	return ok
}

// aggregateWrites reports whether the aggregate command materializes output.
func aggregateWrites(cmd bson.D) bool {
	pipeline, _ := lookup(cmd, "pipeline").(bson.A)

	for _, stage := range pipeline {
		d, ok := stage.(bson.D)
		if !ok {
			continue
		}

		for _, el := range d {
			if el.Key == "$out" || el.Key == "out" {
				return true
			}
		}
	}

	return false
}

// lookup returns the value of a top-level key, or nil.
func lookup(d bson.D, key string) any {
	for _, el := range d {
		if el.Key == key {
			return el.Value
		}
	}

	return nil
}
