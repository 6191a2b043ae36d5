package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vergate/vergate/internal/domain"
	"github.com/vergate/vergate/internal/registry"
)

const callerUserYAML = `
resource: user
records:
  User:
    fields:
      - name: username
        type: string
        required: true
      - name: organizations
        type: list
`

const wireUserYAML = `
resource: user
records:
  UserApi:
    fields:
      - name: username
        type: string
        required: true
      - name: organization_ids
        type: list
converters:
  UserConverter:
    mapping:
      username:
      organizations:
        wire_field: organization_ids
        forward_transform: names_to_ids
        reverse_transform: ids_to_names
        entity: organization
operations:
  create:
    path: /users
    method: post
    fields: [username, organization_ids]
    required_for: [create]
`

// wireGroupYAML names its definitions with extra suffixes; resolution must
// still find them by prefix.
const wireGroupYAML = `
resource: group
records:
  GroupApiV2:
    fields:
      - name: title
        type: string
converters:
  GroupConverterLegacy:
    mapping:
      title:
operations:
  find:
    path: /groups/{id}
`

const callerGroupYAML = `
resource: group
records:
  Group:
    fields:
      - name: title
        type: string
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"resources/user.yaml":     callerUserYAML,
		"resources/group.yaml":    callerGroupYAML,
		"versions/2.0/user.yaml":  wireUserYAML,
		"versions/2.0/group.yaml": wireGroupYAML,
		"versions/1.0/user.yaml":  wireUserYAML,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newLoader(t *testing.T, root string) *Loader {
	t.Helper()
	reg := registry.New(filepath.Join(root, "versions"), nil)
	if err := reg.Discover(); err != nil {
		t.Fatalf("discover: %v", err)
	}
	return New(root, reg, nil)
}

func TestLoadResolvesDefinitions(t *testing.T) {
	l := newLoader(t, writeCatalog(t))

	impl, err := l.Load("user", "2.0")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if impl.Version != "2.0" {
		t.Errorf("version = %q, want 2.0", impl.Version)
	}
	if impl.CallerSchema.Name != "User" || impl.WireSchema.Name != "UserApi" {
		t.Errorf("schemas = %q/%q, want User/UserApi", impl.CallerSchema.Name, impl.WireSchema.Name)
	}
	if impl.Converter == nil {
		t.Fatal("converter not built")
	}
	if len(impl.Operations) != 1 || impl.Operations[0].Method != "POST" {
		t.Errorf("operations = %v, want one POST", impl.Operations)
	}
}

func TestLoadPrefixFallbackNaming(t *testing.T) {
	l := newLoader(t, writeCatalog(t))

	impl, err := l.Load("group", "2.0")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if impl.WireSchema.Name != "GroupApiV2" {
		t.Errorf("wire schema = %q, want prefix match GroupApiV2", impl.WireSchema.Name)
	}
}

func TestLoadVersionFallback(t *testing.T) {
	l := newLoader(t, writeCatalog(t))

	impl, err := l.Load("user", "1.7")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if impl.Version != "1.0" {
		t.Errorf("version = %q, want fallback 1.0", impl.Version)
	}
}

func TestLoadCachesResolution(t *testing.T) {
	l := newLoader(t, writeCatalog(t))

	first, err := l.Load("user", "2.0")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := l.Load("user", "2.0")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first != second {
		t.Error("repeated load must return the cached implementation")
	}
}

func TestLoadMissingResourceFails(t *testing.T) {
	l := newLoader(t, writeCatalog(t))

	_, err := l.Load("widget", "2.0")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *domain.ServiceError
	if !errors.As(err, &se) || se.Type != domain.ErrorTypeVersionResolution {
		t.Errorf("error = %v, want version_resolution", err)
	}
}

func TestLoadMissingConverterDefinition(t *testing.T) {
	root := writeCatalog(t)
	broken := `
resource: user
records:
  UserApi:
    fields:
      - name: username
        type: string
`
	if err := os.WriteFile(filepath.Join(root, "versions", "2.0", "user.yaml"), []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}
	l := newLoader(t, root)

	_, err := l.Load("user", "2.0")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *domain.ServiceError
	if !errors.As(err, &se) || se.Type != domain.ErrorTypeClassResolution {
		t.Errorf("error = %v, want class_resolution", err)
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"user", "User"},
		{"user_group", "UserGroup"},
		{"api-key", "ApiKey"},
	}
	for _, tt := range tests {
		if got := typeName(tt.in); got != tt.want {
			t.Errorf("typeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
