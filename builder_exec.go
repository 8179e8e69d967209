package marlin

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/clause"
	"github.com/marlindb/marlin/internal/driver"
)

// Terminal operations. Each one compiles the accumulated state into a
// single command document, executes it through the connection, and clears
// the builder regardless of outcome.

// Get executes the accumulated read and returns the result documents.
// With aggregation state active the read runs as a pipeline.
func (b *Builder) Get(ctx context.Context) (*Result, error) {
	cmd, cerr := b.GetCompiled()

	_, res, err := b.run(ctx, cmd, cerr)

	return res, err
}

// GetWhere adds the given conditions and executes the read.
func (b *Builder) GetWhere(ctx context.Context, conds bson.D) (*Result, error) {
	for _, el := range conds {
		b.Where(el.Key, el.Value)
	}

	return b.Get(ctx)
}

// CountAllResults counts the documents the accumulated state matches.
// With aggregation state active the count runs over the pipeline output.
func (b *Builder) CountAllResults(ctx context.Context) (*Result, error) {
	aggregate := b.aggregateActive()
	cmd, cerr := b.CountAllResultsCompiled()

	er, res, err := b.run(ctx, cmd, cerr)
	if er == nil {
		return res, err
	}

	if aggregate {
		res.Count = docCount(er.Docs)
	} else {
		res.Count = responseCount(er.Response)
	}

	res.Docs = nil

	return res, nil
}

// CountAll counts every document of the collection, ignoring the
// accumulated state.
func (b *Builder) CountAll(ctx context.Context) (*Result, error) {
	cmd, cerr := b.CountAllCompiled()

	er, res, err := b.run(ctx, cmd, cerr)
	if er == nil {
		return res, err
	}

	res.Count = responseCount(er.Response)

	return res, nil
}

// Insert stores one document. Fields assigned with Set beforehand merge
// into the document; explicit fields win.
func (b *Builder) Insert(ctx context.Context, doc bson.D) (*Result, error) {
	doc = b.mergeSetFields(doc)

	cmd, cerr := b.InsertCompiled(doc)

	_, res, err := b.run(ctx, cmd, cerr)

	return res, err
}

// InsertBatch stores multiple documents, splitting them into commands of
// at most the connection's batch size. The documents of one command are
// applied in order; a failing command stops the batch.
func (b *Builder) InsertBatch(ctx context.Context, docs []bson.D) (*Result, error) {
	defer b.ResetQuery()

	if b.err != nil {
		return b.conn.fail(b.err)
	}

	if len(docs) == 0 {
		return b.conn.fail(driver.NewValidationError("insert batch requires at least one document"))
	}

	size := b.conn.batchSize
	total := &Result{OK: true}

	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))

		cmd, cerr := b.InsertCompiled(docs[start:end]...)
		if cerr != nil {
			return b.conn.fail(cerr)
		}

		er, err := b.execute(ctx, cmd)
		if err != nil {
			return b.conn.fail(err)
		}

		total.Affected += er.Affected
	}

	b.conn.record(nil)

	return total, nil
}

// Update applies the accumulated update document to every matching
// document.
func (b *Builder) Update(ctx context.Context) (*Result, error) {
	cmd, cerr := b.UpdateCompiled()

	_, res, err := b.run(ctx, cmd, cerr)

	return res, err
}

// UpdateBatch applies per-document updates keyed by the index field, all
// in one command.
func (b *Builder) UpdateBatch(ctx context.Context, docs []bson.D, indexField string) (*Result, error) {
	cmd, cerr := b.UpdateBatchCompiled(docs, indexField)

	_, res, err := b.run(ctx, cmd, cerr)

	return res, err
}

// Replace overwrites the first matching document with the given one.
func (b *Builder) Replace(ctx context.Context, doc bson.D) (*Result, error) {
	cmd, cerr := b.ReplaceCompiled(doc)

	_, res, err := b.run(ctx, cmd, cerr)

	return res, err
}

// Delete removes every matching document.
func (b *Builder) Delete(ctx context.Context) (*Result, error) {
	cmd, cerr := b.DeleteCompiled()

	_, res, err := b.run(ctx, cmd, cerr)

	return res, err
}

// run executes one compiled command and normalizes the outcome, clearing
// the builder on the way out. The raw execution result is nil when the
// command did not execute or failed.
func (b *Builder) run(ctx context.Context, cmd bson.D, cerr error) (*driver.ExecuteResult, *Result, error) {
	defer b.ResetQuery()

	if b.err != nil {
		res, err := b.conn.fail(b.err)
		return nil, res, err
	}

	if cerr != nil {
		res, err := b.conn.fail(cerr)
		return nil, res, err
	}

	er, err := b.execute(ctx, cmd)
	if err != nil {
		res, ferr := b.conn.fail(err)
		return nil, res, ferr
	}

	b.conn.record(nil)

	return er, &Result{
		OK:         true,
		Docs:       er.Docs,
		Affected:   er.Affected,
		InsertedID: er.InsertedID,
	}, nil
}

// execute dispatches one command through the connection's executor.
func (b *Builder) execute(ctx context.Context, cmd bson.D) (*driver.ExecuteResult, error) {
	return b.conn.exec.Execute(ctx, &driver.ExecuteParams{
		Command:            cmd,
		Session:            b.sess,
		AllowNoFilterWrite: b.allowNoFilterWrite,
	})
}

// mergeSetFields merges fields assigned with Set into an insert document.
// Explicit document fields win over assigned ones.
func (b *Builder) mergeSetFields(doc bson.D) bson.D {
	set := b.update.Section(clause.UpdateSet)
	if len(set) == 0 {
		return doc
	}

	present := make(map[string]struct{}, len(doc))
	for _, el := range doc {
		present[el.Key] = struct{}{}
	}

	merged := make(bson.D, 0, len(set)+len(doc))

	for _, el := range set {
		if _, ok := present[el.Key]; !ok {
			merged = append(merged, el)
		}
	}

	return append(merged, doc...)
}

// responseCount reads the matched-document count from a count command
// response.
func responseCount(resp bson.D) int64 {
	for _, el := range resp {
		if el.Key == "n" {
			if n, ok := asCount(el.Value); ok {
				return n
			}
		}
	}

	return 0
}

// docCount reads the count from the single output document of a counting
// pipeline. No output documents means no groups matched.
func docCount(docs []bson.D) int64 {
	if len(docs) == 0 {
		return 0
	}

	for _, el := range docs[0] {
		if el.Key == "n" {
			if n, ok := asCount(el.Value); ok {
				return n
			}
		}
	}

	return 0
}

// asCount converts a BSON numeric count to int64.
func asCount(v any) (int64, bool) {
	switch v := v.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
