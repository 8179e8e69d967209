package marlin

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/aggregation"
	"github.com/marlindb/marlin/internal/clause"
	"github.com/marlindb/marlin/internal/driver"
)

// Compiled-output mode: every terminal operation has a variant returning
// the exact command document that would be sent, without executing it and
// without clearing the builder.

// GetCompiled returns the command Get would send.
func (b *Builder) GetCompiled() (bson.D, error) {
	if b.aggregateActive() {
		return b.compileAggregate(nil)
	}

	cmd := bson.D{{Key: driver.VerbFind, Value: b.table}}

	if filter := b.filter.Filter(); len(filter) > 0 {
		cmd = append(cmd, bson.E{Key: "filter", Value: filter})
	}

	if len(b.fields) > 0 {
		projection := make(bson.D, 0, len(b.fields))
		for _, f := range b.fields {
			projection = append(projection, bson.E{Key: f, Value: int32(1)})
		}

		cmd = append(cmd, bson.E{Key: "projection", Value: projection})
	}

	if len(b.sort) > 0 {
		cmd = append(cmd, bson.E{Key: "sort", Value: b.sort})
	}

	if b.offset > 0 {
		cmd = append(cmd, bson.E{Key: "skip", Value: b.offset})
	}

	if b.limit > 0 {
		cmd = append(cmd, bson.E{Key: "limit", Value: b.limit})
	}

	return cmd, nil
}

// CountAllResultsCompiled returns the command CountAllResults would send.
func (b *Builder) CountAllResultsCompiled() (bson.D, error) {
	if b.aggregateActive() {
		return b.compileAggregate(bson.D{{Key: "$count", Value: "n"}})
	}

	cmd := bson.D{{Key: driver.VerbCount, Value: b.table}}

	if filter := b.filter.Filter(); len(filter) > 0 {
		cmd = append(cmd, bson.E{Key: "query", Value: filter})
	}

	return cmd, nil
}

// CountAllCompiled returns the command CountAll would send.
func (b *Builder) CountAllCompiled() (bson.D, error) {
	return bson.D{{Key: driver.VerbCount, Value: b.table}}, nil
}

// InsertCompiled returns the command Insert / InsertBatch would send for
// the given documents.
func (b *Builder) InsertCompiled(docs ...bson.D) (bson.D, error) {
	if len(docs) == 0 {
		return nil, driver.NewValidationError("insert requires at least one document")
	}

	documents := make(bson.A, 0, len(docs))

	for _, doc := range docs {
		if len(doc) == 0 {
			return nil, driver.NewValidationError("insert document is empty")
		}

		documents = append(documents, b.normalizeDoc(doc))
	}

	return bson.D{
		{Key: driver.VerbInsert, Value: b.table},
		{Key: "documents", Value: documents},
		{Key: "ordered", Value: true},
	}, nil
}

// UpdateCompiled returns the command Update would send.
func (b *Builder) UpdateCompiled() (bson.D, error) {
	if b.update.Empty() {
		return nil, driver.NewValidationError("update has no data set")
	}

	stmt := bson.D{
		{Key: "q", Value: b.filter.Filter()},
		{Key: "u", Value: b.update.BSON()},
		{Key: "multi", Value: true},
		{Key: "upsert", Value: b.upsert},
	}

	return bson.D{
		{Key: driver.VerbUpdate, Value: b.table},
		{Key: "updates", Value: bson.A{stmt}},
	}, nil
}

// UpdateBatchCompiled returns the command UpdateBatch would send: one
// update statement per document, keyed by the index field, in a single
// command.
func (b *Builder) UpdateBatchCompiled(docs []bson.D, indexField string) (bson.D, error) {
	if len(docs) == 0 {
		return nil, driver.NewValidationError("update batch requires at least one document")
	}

	if indexField == "" {
		return nil, driver.NewValidationError("update batch requires an index field")
	}

	updates := make(bson.A, 0, len(docs))

	for _, doc := range docs {
		doc = b.normalizeDoc(doc)

		var key any
		set := make(bson.D, 0, len(doc)-1)

		for _, el := range doc {
			if el.Key == indexField {
				key = el.Value
				continue
			}

			set = append(set, el)
		}

		if key == nil {
			return nil, driver.NewValidationError("update batch document misses index field %q", indexField)
		}

		updates = append(updates, bson.D{
			{Key: "q", Value: bson.D{{Key: indexField, Value: key}}},
			{Key: "u", Value: bson.D{{Key: clause.UpdateSet, Value: set}}},
			{Key: "multi", Value: false},
			{Key: "upsert", Value: b.upsert},
		})
	}

	return bson.D{
		{Key: driver.VerbUpdate, Value: b.table},
		{Key: "updates", Value: updates},
	}, nil
}

// ReplaceCompiled returns the command Replace would send: a whole-document
// update of the first match.
func (b *Builder) ReplaceCompiled(doc bson.D) (bson.D, error) {
	if len(doc) == 0 {
		return nil, driver.NewValidationError("replace document is empty")
	}

	stmt := bson.D{
		{Key: "q", Value: b.filter.Filter()},
		{Key: "u", Value: b.normalizeDoc(doc)},
		{Key: "multi", Value: false},
		{Key: "upsert", Value: b.upsert},
	}

	return bson.D{
		{Key: driver.VerbUpdate, Value: b.table},
		{Key: "updates", Value: bson.A{stmt}},
	}, nil
}

// DeleteCompiled returns the command Delete would send.
func (b *Builder) DeleteCompiled() (bson.D, error) {
	stmt := bson.D{
		{Key: "q", Value: b.filter.Filter()},
		{Key: "limit", Value: int32(0)},
	}

	return bson.D{
		{Key: driver.VerbDelete, Value: b.table},
		{Key: "deletes", Value: bson.A{stmt}},
	}, nil
}

// aggregateActive reports whether the accumulated state needs an
// aggregation pipeline instead of a plain query.
func (b *Builder) aggregateActive() bool {
	return aggregation.Active(b.aggregationParams())
}

// aggregationParams assembles pipeline synthesis parameters from the
// accumulated state.
func (b *Builder) aggregationParams() *aggregation.Params {
	group := b.groupFields
	if len(group) == 0 && b.distinct && len(b.distinctFields) > 0 {
		group = b.distinctFields
	}

	return &aggregation.Params{
		Filter:       b.filter.Filter(),
		Fields:       b.fields,
		GroupFields:  group,
		Distinct:     b.distinct,
		Accumulators: b.accums,
		Having:       b.having.Filter(),
		Sort:         b.sort,
		Skip:         b.offset,
		Limit:        b.limit,
	}
}

// compileAggregate synthesizes the aggregate command, optionally appending
// one extra trailing stage.
func (b *Builder) compileAggregate(extra bson.D) (bson.D, error) {
	stages, err := aggregation.Build(b.aggregationParams())
	if err != nil {
		return nil, driver.NewValidationError("%s", err.Error())
	}

	pipeline := make(bson.A, 0, len(stages)+1)
	for _, s := range stages {
		pipeline = append(pipeline, s)
	}

	if len(extra) > 0 {
		pipeline = append(pipeline, extra)
	}

	return bson.D{
		{Key: driver.VerbAggregate, Value: b.table},
		{Key: "pipeline", Value: pipeline},
		{Key: "cursor", Value: bson.D{}},
	}, nil
}

// normalizeDoc applies schema coercion and intrinsic value normalization
// to every top-level field of a document.
func (b *Builder) normalizeDoc(doc bson.D) bson.D {
	res := make(bson.D, len(doc))

	for i, el := range doc {
		v := el.Value
		if b.sch != nil {
			v = b.sch.Coerce(el.Key, v)
		}

		res[i] = bson.E{Key: el.Key, Value: clause.Normalize(el.Key, v)}
	}

	return res
}
