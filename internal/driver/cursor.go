package driver

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/util/lazyerrors"
)

// ErrCursorExhausted is returned by cursorIterator.Next when no documents
// are left.
var ErrCursorExhausted = errors.New("cursor exhausted")

// cursorIterator walks the batches of a command cursor, fetching
// continuation batches with getMore through the same runner.
//
// Next closes the iterator on any error, including context cancellation,
// so a server-side cursor is not left open longer than necessary.
type cursorIterator struct {
	ctx   context.Context
	r     Runner
	m     sync.Mutex
	batch []bson.D
	id    int64
	coll  string
	done  bool
}

// newCursorIterator creates an iterator from the cursor sub-document of a
// command response. A response without a cursor yields an already-done
// iterator.
func newCursorIterator(ctx context.Context, r Runner, resp bson.D) (*cursorIterator, error) {
	cur, ok := lookup(resp, "cursor").(bson.D)
	if !ok {
		return &cursorIterator{done: true}, nil
	}

	it := &cursorIterator{
		ctx: ctx,
		r:   r,
	}

	batch, _ := lookup(cur, "firstBatch").(bson.A)
	if batch == nil {
		batch, _ = lookup(cur, "nextBatch").(bson.A)
	}

	if err := it.setBatch(batch); err != nil {
		return nil, lazyerrors.Error(err)
	}

	it.id, _ = lookup(cur, "id").(int64)

	if ns, _ := lookup(cur, "ns").(string); ns != "" {
		for i := 0; i < len(ns); i++ {
			if ns[i] == '.' {
				it.coll = ns[i+1:]
				break
			}
		}
	}

	return it, nil
}

// Next returns the next document, or ErrCursorExhausted.
func (it *cursorIterator) Next() (bson.D, error) {
	it.m.Lock()
	defer it.m.Unlock()

	for {
		if it.done && len(it.batch) == 0 {
			return nil, ErrCursorExhausted
		}

		if err := context.Cause(it.ctx); err != nil {
			it.close()
			return nil, lazyerrors.Error(err)
		}

		if len(it.batch) > 0 {
			doc := it.batch[0]
			it.batch = it.batch[1:]

			return doc, nil
		}

		if it.id == 0 {
			it.done = true
			continue
		}

		if err := it.fetchMore(); err != nil {
			it.close()
			return nil, lazyerrors.Error(err)
		}
	}
}

// Drain returns all remaining documents.
func (it *cursorIterator) Drain() ([]bson.D, error) {
	var res []bson.D

	for {
		doc, err := it.Next()

		switch {
		case err == nil:
			res = append(res, doc)
		case errors.Is(err, ErrCursorExhausted):
			return res, nil
		default:
			return nil, lazyerrors.Error(err)
		}
	}
}

// Close releases the iterator.
func (it *cursorIterator) Close() {
	it.m.Lock()
	defer it.m.Unlock()

	it.close()
}

// close marks the iterator done without holding the mutex.
//
// This should be called only when the caller already holds the mutex.
func (it *cursorIterator) close() {
	it.done = true
	it.batch = nil
	it.id = 0
}

// fetchMore requests the next batch from the server.
func (it *cursorIterator) fetchMore() error {
	resp, err := it.r.RunCommand(it.ctx, bson.D{
		{Key: VerbGetMore, Value: it.id},
		{Key: "collection", Value: it.coll},
	})
	if err != nil {
		return lazyerrors.Error(err)
	}

	cur, ok := lookup(resp, "cursor").(bson.D)
	if !ok {
		return lazyerrors.New("getMore response carries no cursor")
	}

	batch, _ := lookup(cur, "nextBatch").(bson.A)
	if err := it.setBatch(batch); err != nil {
		return lazyerrors.Error(err)
	}

	it.id, _ = lookup(cur, "id").(int64)

	return nil
}

// setBatch replaces the current batch with decoded documents.
func (it *cursorIterator) setBatch(batch bson.A) error {
	it.batch = make([]bson.D, 0, len(batch))

	for _, v := range batch {
		doc, ok := v.(bson.D)
		if !ok {
			return lazyerrors.Errorf("unexpected batch element %T", v)
		}

		it.batch = append(it.batch, doc)
	}

	return nil
}
