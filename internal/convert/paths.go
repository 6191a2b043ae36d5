package convert

import (
	"strings"

	"github.com/vergate/vergate/internal/domain"
)

// Flatten converts a nested record into a path-addressable mapping with
// dot-delimited keys. Arrays are treated as leaf values; element-wise
// handling happens at transform time.
func Flatten(rec domain.Record) map[string]any {
	out := make(map[string]any, len(rec))
	flattenInto(out, "", rec)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// SetPath writes value at a dot-delimited path, creating intermediate
// nesting levels as needed.
func SetPath(rec domain.Record, path string, value any) {
	parts := strings.Split(path, ".")
	cur := rec
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// GetPath reads the value at a dot-delimited path.
func GetPath(rec domain.Record, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(rec)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
