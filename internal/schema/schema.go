// Package schema provides best-effort value coercion against a collection's
// validator schema and read-only introspection views over listCollections
// and listIndexes responses.
//
// A schema is always optional: without one, all fields are untyped and
// values pass through unchanged.
package schema

import (
	"slices"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Schema describes the declared field types of one collection.
//
// Schema values should be treated as immutable after construction.
type Schema struct {
	fields map[string]*Field
	order  []string
}

// Field is the declared shape of a single field.
//
//nolint:vet // for readability
type Field struct {
	Name      string
	Type      string // declared BSON type, empty when untyped
	Required  bool
	Nullable  bool
	MaxLength int32 // 0 when undeclared
	Default   any
}

// FromValidator builds a schema from a $jsonSchema validator document.
// It returns nil when the document declares no usable properties.
func FromValidator(validator bson.D) *Schema {
	props, _ := lookup(validator, "properties").(bson.D)
	if len(props) == 0 {
		return nil
	}

	var required []string
	if arr, ok := lookup(validator, "required").(bson.A); ok {
		for _, v := range arr {
			if name, ok := v.(string); ok {
				required = append(required, name)
			}
		}
	}

	s := &Schema{fields: make(map[string]*Field, len(props))}

	for _, el := range props {
		decl, _ := el.Value.(bson.D)

		f := &Field{
			Name:     el.Key,
			Type:     declaredType(decl),
			Required: slices.Contains(required, el.Key),
			Nullable: nullableType(decl) || !slices.Contains(required, el.Key),
			Default:  lookup(decl, "default"),
		}

		switch v := lookup(decl, "maxLength").(type) {
		case int32:
			f.MaxLength = v
		case int64:
			f.MaxLength = int32(v)
		case float64:
			f.MaxLength = int32(v)
		}

		s.fields[el.Key] = f
		s.order = append(s.order, el.Key)
	}

	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []*Field {
	if s == nil {
		return nil
	}

	res := make([]*Field, 0, len(s.order))
	for _, name := range s.order {
		res = append(res, s.fields[name])
	}

	return res
}

// Field returns the declaration of a single field, or nil.
func (s *Schema) Field(name string) *Field {
	if s == nil {
		return nil
	}

	return s.fields[name]
}

// Coerce converts a value towards a field's declared type, best-effort.
// Unknown fields, nil schemas and inconvertible values pass through
// unchanged.
func (s *Schema) Coerce(field string, v any) any {
	f := s.Field(field)
	if f == nil || v == nil {
		return v
	}

	switch f.Type {
	case "int":
		if res, ok := toInt64(v); ok {
			return int32(res)
		}
	case "long":
		if res, ok := toInt64(v); ok {
			return res
		}
	case "double":
		if res, ok := toFloat64(v); ok {
			return res
		}
	case "decimal":
		if str, ok := v.(string); ok {
			if dec, err := primitive.ParseDecimal128(str); err == nil {
				return dec
			}
		}
	case "bool":
		if res, ok := toBool(v); ok {
			return res
		}
	case "date":
		if res, ok := toDateTime(v); ok {
			return res
		}
	case "objectId":
		if str, ok := v.(string); ok {
			if oid, err := primitive.ObjectIDFromHex(str); err == nil {
				return oid
			}
		}
	case "string":
		if str, ok := toString(v); ok {
			return str
		}
	case "array":
		switch v.(type) {
		case bson.A, []any:
		default:
			return bson.A{v}
		}
	}

	return v
}

// declaredType extracts the non-null BSON type from a property declaration;
// bsonType may be a single name or a list that includes "null".
func declaredType(decl bson.D) string {
	switch t := lookup(decl, "bsonType").(type) {
	case string:
		return t
	case bson.A:
		for _, v := range t {
			if name, ok := v.(string); ok && name != "null" {
				return name
			}
		}
	}

	return ""
}

// nullableType reports whether the declaration explicitly allows null.
func nullableType(decl bson.D) bool {
	if t, ok := lookup(decl, "bsonType").(bson.A); ok {
		return slices.Contains(t, any("null"))
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

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		res, err := strconv.ParseInt(v, 10, 64)
		return res, err == nil
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		res, err := strconv.ParseFloat(v, 64)
		return res, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch v := v.(type) {
	case bool:
		return v, true
	case string:
		res, err := strconv.ParseBool(v)
		return res, err == nil
	case int32:
		return v != 0, true
	case int64:
		return v != 0, true
	case int:
		return v != 0, true
	default:
		return false, false
	}
}

func toDateTime(v any) (primitive.DateTime, bool) {
	switch v := v.(type) {
	case primitive.DateTime:
		return v, true
	case time.Time:
		return primitive.NewDateTimeFromTime(v.UTC()), true
	case int64:
		return primitive.DateTime(v), true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return primitive.NewDateTimeFromTime(t.UTC()), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case int32:
		return strconv.Itoa(int(v)), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
