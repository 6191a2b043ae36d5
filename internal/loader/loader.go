// Package loader resolves a (resource, version) pair to the concrete record
// schemas, converter, and endpoint operations implementing it. Definitions
// live in the resource catalog; resolved implementations are cached for the
// process lifetime.
package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/vergate/vergate/internal/convert"
	"github.com/vergate/vergate/internal/domain"
	"github.com/vergate/vergate/internal/registry"
)

// Implementation is the resolved triple for one resource at one version,
// plus the endpoint operations that drive the orchestrator.
type Implementation struct {
	Resource string
	Version  string

	CallerSchema *domain.RecordSchema
	WireSchema   *domain.RecordSchema
	Converter    *convert.Converter
	Operations   []domain.EndpointOperation
}

// Option configures the loader.
type Option func(*Loader)

// WithTransforms overrides the transform registry injected into converters.
func WithTransforms(r *convert.TransformRegistry) Option {
	return func(l *Loader) { l.transforms = r }
}

// WithHooks overrides the post-transform hook registry.
func WithHooks(r *convert.HookRegistry) Option {
	return func(l *Loader) { l.hooks = r }
}

// Loader locates and caches resource implementations. Version choice is
// delegated to the registry; resolution is deterministic, so a redundant
// populate under a cache race is harmless.
type Loader struct {
	catalogRoot string
	registry    *registry.Registry
	transforms  *convert.TransformRegistry
	hooks       *convert.HookRegistry
	logger      *slog.Logger

	mu    sync.RWMutex
	cache map[string]*Implementation
}

// New creates a loader over a catalog root and its version registry.
func New(catalogRoot string, reg *registry.Registry, logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		catalogRoot: catalogRoot,
		registry:    reg,
		transforms:  convert.DefaultTransforms,
		hooks:       convert.DefaultHooks,
		logger:      logger,
		cache:       make(map[string]*Implementation),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves the best compatible implementation of resource for the
// requested version.
func (l *Loader) Load(resource, requestedVersion string) (*Implementation, error) {
	version, err := l.registry.FindBest(requestedVersion, resource)
	if err != nil {
		return nil, err
	}

	key := resource + "@" + version
	l.mu.RLock()
	impl, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return impl, nil
	}

	impl, err = l.resolve(resource, version)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[key] = impl
	l.mu.Unlock()

	l.logger.Info("resolved resource implementation",
		slog.String("resource", resource),
		slog.String("requested", requestedVersion),
		slog.String("version", version))
	return impl, nil
}

func (l *Loader) resolve(resource, version string) (*Implementation, error) {
	callerFile, err := readResourceFile(filepath.Join(l.catalogRoot, "resources", resource+".yaml"))
	if err != nil {
		return nil, domain.ErrClassResolution(fmt.Sprintf("caller-facing definition for %q: %v", resource, err)).WithResource(resource)
	}
	versionFile, err := readResourceFile(filepath.Join(l.registry.Dir(version), resource+".yaml"))
	if err != nil {
		return nil, domain.ErrClassResolution(fmt.Sprintf("version %s definition for %q: %v", version, resource, err)).WithResource(resource)
	}

	expected := typeName(resource)

	callerSchema, err := callerFile.record(expected)
	if err != nil {
		return nil, domain.ErrClassResolution(err.Error()).WithResource(resource)
	}
	wireSchema, err := versionFile.record(expected + "Api")
	if err != nil {
		return nil, domain.ErrClassResolution(err.Error()).WithResource(resource)
	}
	convDef, err := versionFile.converter(expected + "Converter")
	if err != nil {
		return nil, domain.ErrClassResolution(err.Error()).WithResource(resource)
	}

	mapping, err := convDef.fieldMapping()
	if err != nil {
		return nil, domain.ErrClassResolution(err.Error()).WithResource(resource)
	}

	converter, err := convert.New(convert.Config{
		Mapping:      mapping,
		Transforms:   l.transforms,
		Hooks:        l.hooks,
		CallerSchema: callerSchema,
		WireSchema:   wireSchema,
		PostForward:  convDef.PostForward,
		PostReverse:  convDef.PostReverse,
	})
	if err != nil {
		return nil, err
	}

	return &Implementation{
		Resource:     resource,
		Version:      version,
		CallerSchema: callerSchema,
		WireSchema:   wireSchema,
		Converter:    converter,
		Operations:   versionFile.endpointOperations(),
	}, nil
}

// typeName derives the expected definition name from a resource name:
// "user" -> "User", "user_group" -> "UserGroup".
func typeName(resource string) string {
	out := make([]byte, 0, len(resource))
	upper := true
	for i := 0; i < len(resource); i++ {
		c := resource[i]
		if c == '_' || c == '-' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}
