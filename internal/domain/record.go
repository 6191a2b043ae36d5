package domain

import "fmt"

// Record is the structured representation exchanged on both sides of the
// converter. Caller-facing and wire-facing records share this shape; their
// schemas differ.
type Record = map[string]any

// FieldDef declares one field of a record schema.
type FieldDef struct {
	Name     string `koanf:"name"`
	Type     string `koanf:"type"` // string, int, number, bool, list, map, any
	Required bool   `koanf:"required"`
}

// RecordSchema is a declarative record type. Schemas are loaded from the
// resource catalog; the caller-facing schema is version-independent while
// wire schemas belong to a specific version.
type RecordSchema struct {
	Name   string     `koanf:"name"`
	Fields []FieldDef `koanf:"fields"`
}

// Field returns the definition for a top-level field name.
func (s *RecordSchema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// NewRecord instantiates the schema from raw data. Unknown fields and missing
// required fields are errors surfaced to the caller, never dropped silently.
func (s *RecordSchema) NewRecord(data Record) (Record, error) {
	rec := make(Record, len(data))
	for k, v := range data {
		def, ok := s.Field(rootField(k))
		if !ok {
			return nil, ErrTransform(fmt.Sprintf("record %s has no field %q", s.Name, k))
		}
		if v != nil && !typeMatches(def.Type, v) {
			return nil, ErrTransform(fmt.Sprintf("record %s field %q: expected %s, got %T", s.Name, k, def.Type, v))
		}
		rec[k] = v
	}
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if v, ok := rec[f.Name]; !ok || v == nil {
			return nil, ErrTransform(fmt.Sprintf("record %s missing required field %q", s.Name, f.Name))
		}
	}
	return rec, nil
}

// rootField strips a dot-delimited path down to its top-level component so
// nested assignments validate against the declared parent field.
func rootField(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}

func typeMatches(typ string, v any) bool {
	switch typ {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "int":
		switch v.(type) {
		case int, int32, int64:
			return true
		case float64:
			f := v.(float64)
			return f == float64(int64(f))
		}
		return false
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "list":
		_, ok := v.([]any)
		return ok
	case "map":
		_, ok := v.(map[string]any)
		return ok
	}
	// Unknown declared type: accept rather than reject, the catalog author
	// owns the contract.
	return true
}
