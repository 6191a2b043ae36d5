// Package registry discovers which resource implementations exist for which
// remote API versions. Discovery is driven entirely by the catalog directory
// layout; nothing is hardcoded, so adding a version means adding a directory.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vergate/vergate/internal/domain"
)

// Registry answers "which versions implement this resource" and "which
// version best satisfies this request" from a single directory scan.
type Registry struct {
	root   string
	logger *slog.Logger

	mu         sync.RWMutex
	versions   []Version           // ascending
	byVersion  map[string][]string // canonical version -> resource names
	byResource map[string][]Version
}

// New creates a registry rooted at the catalog's versions directory.
func New(root string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		root:       root,
		logger:     logger,
		byVersion:  make(map[string][]string),
		byResource: make(map[string][]Version),
	}
}

// Discover scans the root for version-named child directories and enumerates
// the resource definition files within each. Safe to call again; the matrix
// is rebuilt from scratch.
func (r *Registry) Discover() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("read versions directory %s: %w", r.root, err)
	}

	versions := make([]Version, 0, len(entries))
	byVersion := make(map[string][]string)
	byResource := make(map[string][]Version)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := ParseVersion(entry.Name())
		if err != nil {
			r.logger.Warn("skipping non-version directory",
				slog.String("dir", entry.Name()))
			continue
		}

		files, err := os.ReadDir(filepath.Join(r.root, entry.Name()))
		if err != nil {
			return fmt.Errorf("read version directory %s: %w", entry.Name(), err)
		}

		var resources []string
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
				continue
			}
			resource := strings.TrimSuffix(f.Name(), ".yaml")
			resources = append(resources, resource)
			byResource[resource] = append(byResource[resource], v)
		}
		sort.Strings(resources)

		versions = append(versions, v)
		byVersion[v.String()] = resources
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].Compare(versions[j]) < 0 })
	for _, vs := range byResource {
		sort.Slice(vs, func(i, j int) bool { return vs[i].Compare(vs[j]) < 0 })
	}

	r.mu.Lock()
	r.versions = versions
	r.byVersion = byVersion
	r.byResource = byResource
	r.mu.Unlock()

	r.logger.Info("version discovery complete",
		slog.Int("versions", len(versions)),
		slog.Int("resources", len(byResource)))
	return nil
}

// Dir returns the directory holding definitions for a discovered version.
func (r *Registry) Dir(version string) string {
	v, err := ParseVersion(version)
	if err != nil {
		return filepath.Join(r.root, version)
	}
	// Directories may use underscores; prefer whichever exists.
	dotted := filepath.Join(r.root, v.String())
	if _, err := os.Stat(dotted); err == nil {
		return dotted
	}
	return filepath.Join(r.root, strings.ReplaceAll(v.String(), ".", "_"))
}

// SupportedVersions returns every discovered version in ascending order.
func (r *Registry) SupportedVersions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.versions))
	for i, v := range r.versions {
		out[i] = v.String()
	}
	return out
}

// Resources returns the version -> resources matrix.
func (r *Registry) Resources() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.byVersion))
	for v, rs := range r.byVersion {
		out[v] = append([]string(nil), rs...)
	}
	return out
}

// VersionsFor returns the versions implementing a resource, ascending.
func (r *Registry) VersionsFor(resource string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vs := r.byResource[resource]
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

// FindBest resolves the closest compatible version for a resource. Exact
// match wins; otherwise the greatest available version not newer than the
// request is preferred (backward compatible, logged as informational);
// failing that, the smallest newer version is used with a compatibility
// warning. Not-found means the resource has no implementation anywhere.
func (r *Registry) FindBest(requested, resource string) (string, error) {
	req, err := ParseVersion(requested)
	if err != nil {
		return "", domain.ErrVersionResolution(fmt.Sprintf("requested version %q is not a version", requested)).WithResource(resource)
	}

	r.mu.RLock()
	available := r.byResource[resource]
	r.mu.RUnlock()

	if len(available) == 0 {
		return "", domain.ErrVersionResolution(fmt.Sprintf("resource %q has no implementation at any version", resource)).WithResource(resource)
	}

	var older, newer Version
	for _, v := range available {
		switch v.Compare(req) {
		case 0:
			return v.String(), nil
		case -1:
			if older == nil || v.Compare(older) > 0 {
				older = v
			}
		case 1:
			if newer == nil || v.Compare(newer) < 0 {
				newer = v
			}
		}
	}

	if older != nil {
		r.logger.Info("falling back to older resource implementation",
			slog.String("resource", resource),
			slog.String("requested", req.String()),
			slog.String("resolved", older.String()))
		return older.String(), nil
	}

	r.logger.Warn("only newer implementations available, compatibility not guaranteed",
		slog.String("resource", resource),
		slog.String("requested", req.String()),
		slog.String("resolved", newer.String()))
	return newer.String(), nil
}
