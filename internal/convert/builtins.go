package convert

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RegisterBuiltins installs the built-in transforms into a registry. Called
// once at startup for the default registry; tests may install them into
// private registries.
func RegisterBuiltins(r *TransformRegistry) {
	r.Register("names_to_ids", namesToIDs)
	r.Register("ids_to_names", idsToNames)
	r.Register("name_to_id", nameToID)
	r.Register("id_to_name", idToName)
	r.Register("to_int", toInt)
	r.Register("lowercase", lowercase)
}

func init() {
	RegisterBuiltins(DefaultTransforms)
}

// resolveID consults the service lookup helper when available, falling back
// to a direct cache read so conversions remain testable without a service.
func resolveID(ctx context.Context, tc *Context, name string) (any, error) {
	entity, path := fieldLookup(tc)
	if tc.Lookup != nil {
		return tc.Lookup.ResolveID(ctx, entity, path, name)
	}
	if tc.Cache != nil {
		if id, ok := tc.Cache.GetID(entity, name); ok {
			return id, nil
		}
	}
	return nil, fmt.Errorf("no lookup available for %s %q", entity, name)
}

func resolveName(ctx context.Context, tc *Context, id any) (string, error) {
	entity, path := fieldLookup(tc)
	if tc.Lookup != nil {
		return tc.Lookup.ResolveName(ctx, entity, path, id)
	}
	if tc.Cache != nil {
		if name, ok := tc.Cache.GetName(entity, id); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("no lookup available for %s id %v", entity, id)
}

func fieldLookup(tc *Context) (entity, path string) {
	if tc.Field == nil {
		return "", ""
	}
	return tc.Field.Entity, tc.Field.LookupPath
}

// namesToIDs converts a list of entity names to their identifiers.
func namesToIDs(ctx context.Context, value any, tc *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	names, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("names_to_ids expects a list, got %T", value)
	}
	ids := make([]any, len(names))
	for i, n := range names {
		name, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("names_to_ids element %d: expected string, got %T", i, n)
		}
		id, err := resolveID(ctx, tc, name)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// idsToNames converts a list of entity identifiers back to names.
func idsToNames(ctx context.Context, value any, tc *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	ids, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("ids_to_names expects a list, got %T", value)
	}
	names := make([]any, len(ids))
	for i, id := range ids {
		name, err := resolveName(ctx, tc, id)
		if err != nil {
			return nil, err
		}
		names[i] = name
	}
	return names, nil
}

// nameToID converts a single entity name to its identifier.
func nameToID(ctx context.Context, value any, tc *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("name_to_id expects a string, got %T", value)
	}
	return resolveID(ctx, tc, name)
}

// idToName converts a single entity identifier back to its name.
func idToName(ctx context.Context, value any, tc *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	return resolveName(ctx, tc, value)
}

// toInt coerces numeric strings and JSON numbers to integers.
func toInt(_ context.Context, value any, _ *Context) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		// JSON numbers decode as float64; only integral values convert.
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("to_int: %v is not an integer", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("to_int: %w", err)
		}
		return n, nil
	}
	return nil, fmt.Errorf("to_int: unsupported type %T", value)
}

// lowercase lowercases string values.
func lowercase(_ context.Context, value any, _ *Context) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	}
	return nil, fmt.Errorf("lowercase: unsupported type %T", value)
}
