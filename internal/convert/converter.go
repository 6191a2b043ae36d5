// Package convert implements the generic, mapping-driven record converter.
// A Converter carries no per-resource logic: the injected field mapping and
// transform registry drive both directions of the conversion.
package convert

import (
	"context"
	"fmt"

	"github.com/vergate/vergate/internal/domain"
)

// Converter transforms records between the caller-facing and wire-facing
// representations of one resource at one version.
type Converter struct {
	mapping    domain.FieldMapping
	transforms *TransformRegistry
	hooks      *HookRegistry

	callerSchema *domain.RecordSchema
	wireSchema   *domain.RecordSchema

	// postForward/postReverse name optional hooks applied to the assembled
	// record before target instantiation.
	postForward string
	postReverse string
}

// Config assembles a Converter from its injected collaborators.
type Config struct {
	Mapping      domain.FieldMapping
	Transforms   *TransformRegistry
	Hooks        *HookRegistry
	CallerSchema *domain.RecordSchema
	WireSchema   *domain.RecordSchema
	PostForward  string
	PostReverse  string
}

// New creates a converter. Every caller-facing field referenced by the
// mapping must exist on the caller-facing schema.
func New(cfg Config) (*Converter, error) {
	if cfg.Transforms == nil {
		cfg.Transforms = DefaultTransforms
	}
	if cfg.Hooks == nil {
		cfg.Hooks = DefaultHooks
	}
	if cfg.CallerSchema != nil {
		for _, entry := range cfg.Mapping {
			if _, ok := cfg.CallerSchema.Field(rootOf(entry.Field)); !ok {
				return nil, domain.ErrClassResolution(fmt.Sprintf(
					"mapping references field %q absent from record %s", entry.Field, cfg.CallerSchema.Name))
			}
		}
	}
	return &Converter{
		mapping:      cfg.Mapping,
		transforms:   cfg.Transforms,
		hooks:        cfg.Hooks,
		callerSchema: cfg.CallerSchema,
		wireSchema:   cfg.WireSchema,
		postForward:  cfg.PostForward,
		postReverse:  cfg.PostReverse,
	}, nil
}

// Mapping returns the injected field mapping.
func (c *Converter) Mapping() domain.FieldMapping { return c.mapping }

// Forward converts a caller-facing record to its wire-facing form.
func (c *Converter) Forward(ctx context.Context, rec domain.Record, tc *Context) (domain.Record, error) {
	return c.convert(ctx, rec, tc, true)
}

// Reverse converts a wire-facing record back to its caller-facing form.
func (c *Converter) Reverse(ctx context.Context, rec domain.Record, tc *Context) (domain.Record, error) {
	return c.convert(ctx, rec, tc, false)
}

func (c *Converter) convert(ctx context.Context, rec domain.Record, tc *Context, forward bool) (domain.Record, error) {
	flat := Flatten(rec)
	out := make(domain.Record)

	for _, entry := range c.mapping {
		srcPath, dstPath := entry.Field, wireField(entry)
		transformName := entry.Spec.ForwardTransform
		if !forward {
			srcPath, dstPath = dstPath, srcPath
			transformName = entry.Spec.ReverseTransform
		}

		value, ok := flat[srcPath]
		if !ok {
			// Arrays flatten as leaves, so a dotted source path may still
			// resolve through the original nested record.
			value, ok = GetPath(rec, srcPath)
		}
		if !ok || value == nil {
			// Missing source fields are skipped entirely; no key is emitted.
			continue
		}

		value, err := c.applyTransform(ctx, transformName, value, entry.Spec, tc)
		if err != nil {
			return nil, domain.ErrTransform(fmt.Sprintf("field %q: %v", entry.Field, err)).WithCause(err)
		}

		SetPath(out, dstPath, value)
	}

	hookName := c.postForward
	if !forward {
		hookName = c.postReverse
	}
	if hookName != "" {
		hook, ok := c.hooks.Get(hookName)
		if !ok {
			return nil, domain.ErrClassResolution(fmt.Sprintf("post-transform hook %q not registered", hookName))
		}
		adjusted, err := hook(ctx, out, tc)
		if err != nil {
			return nil, domain.ErrTransform(fmt.Sprintf("hook %q: %v", hookName, err)).WithCause(err)
		}
		out = adjusted
	}

	schema := c.wireSchema
	if !forward {
		schema = c.callerSchema
	}
	if schema == nil {
		return out, nil
	}
	built, err := schema.NewRecord(out)
	if err != nil {
		return nil, err
	}
	return built, nil
}

// applyTransform resolves and applies a named transform. An unregistered
// name is a no-op: the value passes through unchanged. Array-of-record
// values are converted element-wise.
func (c *Converter) applyTransform(ctx context.Context, name string, value any, spec domain.FieldSpec, tc *Context) (any, error) {
	if name == "" {
		return value, nil
	}
	fn, ok := c.transforms.Get(name)
	if !ok {
		return value, nil
	}

	tc.Field = &spec
	defer func() { tc.Field = nil }()

	if items, ok := value.([]any); ok && allRecords(items) {
		converted := make([]any, len(items))
		for i, item := range items {
			v, err := fn(ctx, item, tc)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			converted[i] = v
		}
		return converted, nil
	}

	return fn(ctx, value, tc)
}

func allRecords(items []any) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func wireField(entry domain.MappingEntry) string {
	if entry.Spec.WireField != "" {
		return entry.Spec.WireField
	}
	return entry.Field
}

func rootOf(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}
