package driver

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ConvertLiterals recursively converts portable textual encodings inside a
// command value into native typed values, so callers may pass either form:
//
//	{oid: <24-char hex>}          -> object identifier
//	{date: <RFC 3339 or millis>}  -> UTC millisecond timestamp
//
// The $-prefixed Extended JSON spellings are accepted too. Unordered maps
// are rewritten as ordered documents with sorted keys, so the serialized
// command is deterministic for identical input.
func ConvertLiterals(v any) any {
	switch v := v.(type) {
	case bson.D:
		if res, ok := literal(v); ok {
			return res
		}

		out := make(bson.D, len(v))
		for i, el := range v {
			out[i] = bson.E{Key: el.Key, Value: ConvertLiterals(el.Value)}
		}

		return out

	case bson.M:
		return ConvertLiterals(mapToD(v))

	case map[string]any:
		return ConvertLiterals(mapToD(v))

	case bson.A:
		out := make(bson.A, len(v))
		for i, el := range v {
			out[i] = ConvertLiterals(el)
		}

		return out

	case []any:
		return ConvertLiterals(bson.A(v))

	case time.Time:
		return primitive.NewDateTimeFromTime(v.UTC())

	default:
		return v
	}
}

// literal converts a single-key literal document, if it is one.
func literal(d bson.D) (any, bool) {
	if len(d) != 1 {
		return nil, false
	}

	switch d[0].Key {
	case "oid", "$oid":
		hex, ok := d[0].Value.(string)
		if !ok {
			return nil, false
		}

		oid, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return nil, false
		}

		return oid, true

	case "date", "$date":
		switch val := d[0].Value.(type) {
		case string:
			t, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return nil, false
			}

			return primitive.NewDateTimeFromTime(t.UTC()), true
		case int64:
			return primitive.DateTime(val), true
		case int32:
			return primitive.DateTime(val), true
		case float64:
			return primitive.DateTime(int64(val)), true
		default:
			return nil, false
		}

	default:
		return nil, false
	}
}

// mapToD converts an unordered map into an ordered document with sorted keys.
func mapToD(m map[string]any) bson.D {
	keys := maps.Keys(m)
	slices.Sort(keys)

	res := make(bson.D, 0, len(keys))
	for _, k := range keys {
		res = append(res, bson.E{Key: k, Value: m[k]})
	}

	return res
}
