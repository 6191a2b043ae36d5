package convert

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vergate/vergate/internal/domain"
)

// Transform is a named pure function applied to one field value during
// conversion. Transforms must be identity on nil input.
type Transform func(ctx context.Context, value any, tc *Context) (any, error)

// Hook adjusts a fully-assembled record after all field conversions and
// before the target record type is instantiated.
type Hook func(ctx context.Context, rec domain.Record, tc *Context) (domain.Record, error)

// TransformRegistry maps transform names, as referenced by catalog field
// mappings, to functions.
type TransformRegistry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
}

// NewTransformRegistry creates an empty registry.
func NewTransformRegistry() *TransformRegistry {
	return &TransformRegistry{transforms: make(map[string]Transform)}
}

// Register adds a named transform. Panics on duplicate registration, which
// indicates a programming error during startup.
func (r *TransformRegistry) Register(name string, fn Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		panic("transform name cannot be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("transform %q must have a function", name))
	}
	if _, exists := r.transforms[name]; exists {
		panic(fmt.Sprintf("transform %q already registered", name))
	}
	r.transforms[name] = fn
}

// Get returns the transform registered under name.
func (r *TransformRegistry) Get(name string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.transforms[name]
	return fn, ok
}

// Names returns all registered transform names sorted alphabetically.
func (r *TransformRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HookRegistry maps post-transform hook names to functions.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[string]Hook)}
}

// Register adds a named hook. Panics on duplicate registration.
func (r *HookRegistry) Register(name string, fn Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		panic("hook name cannot be empty")
	}
	if _, exists := r.hooks[name]; exists {
		panic(fmt.Sprintf("hook %q already registered", name))
	}
	r.hooks[name] = fn
}

// Get returns the hook registered under name.
func (r *HookRegistry) Get(name string) (Hook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.hooks[name]
	return fn, ok
}

// Default registries populated by RegisterBuiltins and, for hooks, by
// resource-specific packages at startup.
var (
	DefaultTransforms = NewTransformRegistry()
	DefaultHooks      = NewHookRegistry()
)
