package loader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/vergate/vergate/internal/domain"
)

// resourceFile is one parsed catalog document. The caller-facing file carries
// only records; versioned files add converters and operations.
type resourceFile struct {
	Resource   string                  `koanf:"resource"`
	Records    map[string]recordDef    `koanf:"records"`
	Converters map[string]converterDef `koanf:"converters"`
	Operations map[string]operationDef `koanf:"operations"`
}

type recordDef struct {
	Fields []domain.FieldDef `koanf:"fields"`
}

type converterDef struct {
	// Mapping values are either a plain wire field name or a specification
	// mapping with wire_field/forward_transform/reverse_transform keys.
	Mapping     map[string]any `koanf:"mapping"`
	PostForward string         `koanf:"post_forward"`
	PostReverse string         `koanf:"post_reverse"`
}

type operationDef struct {
	Path        string   `koanf:"path"`
	Method      string   `koanf:"method"`
	Fields      []string `koanf:"fields"`
	RequiredFor []string `koanf:"required_for"`
	DependsOn   string   `koanf:"depends_on"`
	Order       int      `koanf:"order"`
}

func readResourceFile(path string) (*resourceFile, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var rf resourceFile
	if err := k.Unmarshal("", &rf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &rf, nil
}

// record locates a record definition by its expected name, falling back to
// the first definition (alphabetically) whose name starts with the expected
// prefix stripped of its suffix. This mirrors the naming convention the
// catalog follows: User, UserApi, UserConverter.
func (rf *resourceFile) record(expected string) (*domain.RecordSchema, error) {
	if def, ok := rf.Records[expected]; ok {
		return &domain.RecordSchema{Name: expected, Fields: def.Fields}, nil
	}
	prefix := strings.TrimSuffix(expected, "Api")
	for _, name := range sortedKeys(rf.Records) {
		if strings.HasPrefix(name, prefix) {
			return &domain.RecordSchema{Name: name, Fields: rf.Records[name].Fields}, nil
		}
	}
	return nil, fmt.Errorf("no record definition named %s (or prefixed %s)", expected, prefix)
}

func (rf *resourceFile) converter(expected string) (*converterDef, error) {
	if def, ok := rf.Converters[expected]; ok {
		return &def, nil
	}
	prefix := strings.TrimSuffix(expected, "Converter")
	for _, name := range sortedKeys(rf.Converters) {
		if strings.HasPrefix(name, prefix) {
			def := rf.Converters[name]
			return &def, nil
		}
	}
	return nil, fmt.Errorf("no converter definition named %s (or prefixed %s)", expected, prefix)
}

// fieldMapping converts the raw mapping document into the ordered form the
// converter consumes. Entries are ordered by caller-facing field name so
// conversion is deterministic regardless of document layout.
func (cd *converterDef) fieldMapping() (domain.FieldMapping, error) {
	fields := make([]string, 0, len(cd.Mapping))
	for f := range cd.Mapping {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	mapping := make(domain.FieldMapping, 0, len(fields))
	for _, f := range fields {
		raw := cd.Mapping[f]
		var spec domain.FieldSpec
		switch v := raw.(type) {
		case string:
			spec.WireField = v
		case map[string]any:
			spec = domain.FieldSpec{
				WireField:        stringKey(v, "wire_field"),
				ForwardTransform: stringKey(v, "forward_transform"),
				ReverseTransform: stringKey(v, "reverse_transform"),
				Entity:           stringKey(v, "entity"),
				LookupPath:       stringKey(v, "lookup_path"),
			}
		case nil:
			// Bare key: same name on the wire side.
		default:
			return nil, fmt.Errorf("mapping for field %q must be a string or a specification, got %T", f, raw)
		}
		mapping = append(mapping, domain.MappingEntry{Field: f, Spec: spec})
	}
	return mapping, nil
}

func (rf *resourceFile) endpointOperations() []domain.EndpointOperation {
	ops := make([]domain.EndpointOperation, 0, len(rf.Operations))
	for _, name := range sortedKeys(rf.Operations) {
		def := rf.Operations[name]
		method := def.Method
		if method == "" {
			method = "GET"
		}
		ops = append(ops, domain.EndpointOperation{
			Name:        name,
			Path:        def.Path,
			Method:      strings.ToUpper(method),
			Fields:      def.Fields,
			RequiredFor: def.RequiredFor,
			DependsOn:   def.DependsOn,
			Order:       def.Order,
		})
	}
	return ops
}

func stringKey(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
