// Package aggregation synthesizes aggregation pipelines from accumulated
// query-builder state.
//
// Stages are emitted in a fixed order: match, group, projection that
// un-nests group keys, post-group match, sort, skip, limit. Identical
// parameters always produce an identical pipeline.
package aggregation

import (
	"slices"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/marlindb/marlin/internal/util/lazyerrors"
)

// AccumulatorKind is the aggregation function applied within a group.
type AccumulatorKind int

// Aggregation function kinds.
const (
	// Min takes the minimum of a field across the group.
	Min AccumulatorKind = iota

	// Max takes the maximum of a field across the group.
	Max

	// Avg takes the arithmetic mean of a field across the group.
	Avg

	// Sum totals a field across the group.
	Sum

	// CountField counts documents where the field is present and not null.
	CountField

	// CountRows counts documents regardless of any field.
	CountRows
)

// Accumulator is one aggregation function with its source field and
// output alias.
type Accumulator struct {
	Kind  AccumulatorKind
	Field string
	Alias string
}

// Params is the accumulated state a pipeline is synthesized from.
//
//nolint:vet // for readability
type Params struct {
	Filter       bson.D        // pre-group filter
	Fields       []string      // projected fields
	GroupFields  []string      // explicit group-by fields
	Distinct     bool          // group by the projected fields
	Accumulators []Accumulator // aggregation functions
	Having       bson.D        // post-group filter over aliases
	Sort         bson.D        // field -> 1 / -1
	Skip         int64
	Limit        int64

	_ struct{} // prevent unkeyed literals
}

// Build synthesizes the ordered stage list.
func Build(params *Params) ([]bson.D, error) {
	if err := validate(params); err != nil {
		return nil, lazyerrors.Error(err)
	}

	var pipeline []bson.D

	if len(params.Filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: params.Filter}})
	}

	keys := groupKeys(params)

	if len(keys) > 0 || len(params.Accumulators) > 0 {
		group, project := groupStages(params, keys)
		pipeline = append(pipeline, group, project)
	}

	if len(params.Having) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: params.Having}})
	}

	if len(params.Sort) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: params.Sort}})
	}

	// skip before limit, both after sort, to keep page semantics
	if params.Skip > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$skip", Value: params.Skip}})
	}

	if params.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: params.Limit}})
	}

	return pipeline, nil
}

// Active reports whether the parameters need an aggregation pipeline at all,
// as opposed to a plain query.
func Active(params *Params) bool {
	return len(params.GroupFields) > 0 ||
		len(params.Accumulators) > 0 ||
		params.Distinct ||
		len(params.Having) > 0
}

// validate checks the alias uniqueness invariant.
func validate(params *Params) error {
	seen := make(map[string]struct{}, len(params.Accumulators))

	for _, a := range params.Accumulators {
		if a.Alias == "" {
			return lazyerrors.New("aggregation alias is empty")
		}

		if _, dup := seen[a.Alias]; dup {
			return lazyerrors.Errorf("duplicate aggregation alias %q", a.Alias)
		}

		seen[a.Alias] = struct{}{}
	}

	return nil
}

// groupKeys resolves the effective group-by key set: explicit group fields
// win, then a distinct flag groups by the projected fields.
func groupKeys(params *Params) []string {
	if len(params.GroupFields) > 0 {
		return params.GroupFields
	}

	if params.Distinct {
		return params.Fields
	}

	return nil
}

// groupStages builds the group stage and the projection stage that un-nests
// group keys from the synthetic _id back to top-level names.
func groupStages(params *Params, keys []string) (bson.D, bson.D) {
	var id any
	if len(keys) == 0 {
		// single implicit group over the whole result set
		id = nil
	} else {
		sub := make(bson.D, 0, len(keys))
		for _, k := range keys {
			sub = append(sub, bson.E{Key: k, Value: "$" + k})
		}
		id = sub
	}

	group := bson.D{{Key: "_id", Value: id}}
	project := bson.D{{Key: "_id", Value: int32(0)}}

	for _, k := range keys {
		project = append(project, bson.E{Key: k, Value: "$_id." + k})
	}

	for _, a := range params.Accumulators {
		group = append(group, bson.E{Key: a.Alias, Value: accumulate(a)})
		project = append(project, bson.E{Key: a.Alias, Value: int32(1)})
	}

	// plain projected fields survive grouping via the first value in the
	// group; no functional dependency validation is performed
	for _, f := range carryFields(params, keys) {
		group = append(group, bson.E{Key: f, Value: bson.D{{Key: "$first", Value: "$" + f}}})
		project = append(project, bson.E{Key: f, Value: int32(1)})
	}

	return bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$project", Value: project}}
}

// carryFields returns projected fields that are neither group keys nor used
// in aggregations.
func carryFields(params *Params, keys []string) []string {
	var res []string

	for _, f := range params.Fields {
		if slices.Contains(keys, f) {
			continue
		}

		used := slices.ContainsFunc(params.Accumulators, func(a Accumulator) bool {
			return a.Field == f || a.Alias == f
		})
		if used {
			continue
		}

		res = append(res, f)
	}

	return res
}

// accumulate renders one aggregation function as a group accumulator.
func accumulate(a Accumulator) bson.D {
	switch a.Kind {
	case Min:
		return bson.D{{Key: "$min", Value: "$" + a.Field}}
	case Max:
		return bson.D{{Key: "$max", Value: "$" + a.Field}}
	case Avg:
		return bson.D{{Key: "$avg", Value: "$" + a.Field}}
	case Sum:
		return bson.D{{Key: "$sum", Value: "$" + a.Field}}
	case CountField:
		// count present, non-null field values, not rows
		present := bson.D{{Key: "$ne", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$" + a.Field, nil}}},
			nil,
		}}}

		return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{present, int32(1), int32(0)}}}}}
	case CountRows:
		return bson.D{{Key: "$sum", Value: int32(1)}}
	default:
		panic("unknown accumulator kind")
	}
}
