package convert

import (
	"reflect"
	"testing"

	"github.com/vergate/vergate/internal/domain"
)

func TestFlatten(t *testing.T) {
	rec := domain.Record{
		"a": 1,
		"b": map[string]any{
			"c": "x",
			"d": map[string]any{"e": true},
		},
		"list": []any{1, 2},
	}
	got := Flatten(rec)
	want := map[string]any{
		"a":     1,
		"b.c":   "x",
		"b.d.e": true,
		"list":  []any{1, 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten = %v, want %v", got, want)
	}
}

func TestSetPathCreatesNesting(t *testing.T) {
	rec := domain.Record{}
	SetPath(rec, "meta.contact.email", "x@y")
	SetPath(rec, "meta.contact.phone", "555")
	SetPath(rec, "top", 1)

	want := domain.Record{
		"meta": map[string]any{
			"contact": map[string]any{"email": "x@y", "phone": "555"},
		},
		"top": 1,
	}
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("rec = %v, want %v", rec, want)
	}
}

func TestGetPath(t *testing.T) {
	rec := domain.Record{
		"a": map[string]any{"b": 2},
		"s": "leaf",
	}

	if v, ok := GetPath(rec, "a.b"); !ok || v != 2 {
		t.Errorf("a.b = %v, %v", v, ok)
	}
	if v, ok := GetPath(rec, "s"); !ok || v != "leaf" {
		t.Errorf("s = %v, %v", v, ok)
	}
	if _, ok := GetPath(rec, "a.missing"); ok {
		t.Error("missing leaf must report false")
	}
	if _, ok := GetPath(rec, "s.deeper"); ok {
		t.Error("traversing through a leaf must report false")
	}
}
