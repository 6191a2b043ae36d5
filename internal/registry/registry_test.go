package registry

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vergate/vergate/internal/domain"
)

func writeCatalog(t *testing.T, layout map[string][]string) string {
	t.Helper()
	root := t.TempDir()
	for dir, files := range layout {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
		for _, f := range files {
			if err := os.WriteFile(filepath.Join(root, dir, f), []byte("resource: x\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return root
}

func TestDiscoverBuildsMatrix(t *testing.T) {
	root := writeCatalog(t, map[string][]string{
		"1.0": {"user.yaml", "group.yaml"},
		"2.0": {"user.yaml"},
		"2.5": {"user.yaml", "group.yaml"},
	})
	// Non-version noise is skipped, not fatal.
	if err := os.MkdirAll(filepath.Join(root, "README"), 0o755); err != nil {
		t.Fatal(err)
	}

	r := New(root, nil)
	if err := r.Discover(); err != nil {
		t.Fatalf("discover: %v", err)
	}

	if got, want := r.SupportedVersions(), []string{"1.0", "2.0", "2.5"}; !reflect.DeepEqual(got, want) {
		t.Errorf("supported = %v, want %v", got, want)
	}
	if got, want := r.VersionsFor("group"), []string{"1.0", "2.5"}; !reflect.DeepEqual(got, want) {
		t.Errorf("versions for group = %v, want %v", got, want)
	}
}

func TestDiscoverUnderscoreDirectories(t *testing.T) {
	root := writeCatalog(t, map[string][]string{
		"2_3": {"user.yaml"},
	})

	r := New(root, nil)
	if err := r.Discover(); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if got, want := r.SupportedVersions(), []string{"2.3"}; !reflect.DeepEqual(got, want) {
		t.Errorf("supported = %v, want %v", got, want)
	}
	if dir := r.Dir("2.3"); dir != filepath.Join(root, "2_3") {
		t.Errorf("dir = %q, want the underscored directory", dir)
	}
}

func TestFindBest(t *testing.T) {
	root := writeCatalog(t, map[string][]string{
		"1.0": {"user.yaml"},
		"2.0": {"user.yaml"},
		"3.1": {"user.yaml", "group.yaml"},
	})
	r := New(root, nil)
	if err := r.Discover(); err != nil {
		t.Fatalf("discover: %v", err)
	}

	tests := []struct {
		name      string
		requested string
		resource  string
		want      string
		wantErr   bool
	}{
		{name: "exact match", requested: "2.0", resource: "user", want: "2.0"},
		{name: "falls back to greatest older", requested: "2.3", resource: "user", want: "2.0"},
		{name: "equal despite trailing zero", requested: "2.0.0", resource: "user", want: "2.0"},
		{name: "only newer available", requested: "1.0", resource: "group", want: "3.1"},
		{name: "unknown resource", requested: "2.0", resource: "widget", wantErr: true},
		{name: "garbage version", requested: "latest", resource: "user", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.FindBest(tt.requested, tt.resource)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				var se *domain.ServiceError
				if !errors.As(err, &se) || se.Type != domain.ErrorTypeVersionResolution {
					t.Errorf("error = %v, want version_resolution", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolved = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "2.0", -1},
		{"2.0", "2.0", 0},
		{"2.3", "2.3.0", 0},
		{"2.10", "2.9", 1},
		{"3", "2.9.9", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			a, err := ParseVersion(tt.a)
			if err != nil {
				t.Fatal(err)
			}
			b, err := ParseVersion(tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got := a.Compare(b); got != tt.want {
				t.Errorf("Compare = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseVersionRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "v1.0", "1..0", "one", "1.0-beta"} {
		if _, err := ParseVersion(s); err == nil {
			t.Errorf("ParseVersion(%q) = nil error, want failure", s)
		}
	}
}
