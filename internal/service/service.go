// Package service implements the long-lived gateway service: one persistent
// HTTP client, one detected remote API version, one lookup cache, and the
// registry/loader pair, behind a single generic Execute entry point.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vergate/vergate/internal/apiclient"
	"github.com/vergate/vergate/internal/cache"
	"github.com/vergate/vergate/internal/convert"
	"github.com/vergate/vergate/internal/domain"
	"github.com/vergate/vergate/internal/loader"
	"github.com/vergate/vergate/internal/orchestrate"
	"github.com/vergate/vergate/internal/registry"
	"github.com/vergate/vergate/internal/storage"
)

// Config assembles a Service from its collaborators.
type Config struct {
	Client   *apiclient.Client
	Loader   *loader.Loader
	Registry *registry.Registry
	Audit    storage.AuditStore
	Logger   *slog.Logger

	// DefaultVersion is used when the startup probe fails.
	DefaultVersion string

	// ProbePath and VersionField locate the remote API's version document.
	ProbePath    string
	VersionField string
}

// Service executes logical resource operations against the remote API. One
// instance serves every RPC connection; all shared state is safe for
// concurrent use.
type Service struct {
	logger   *slog.Logger
	client   *apiclient.Client
	loader   *loader.Loader
	registry *registry.Registry
	cache    *cache.Cache
	audit    storage.AuditStore
	orch     *orchestrate.Orchestrator
	tracer   trace.Tracer

	defaultVersion string
	probePath      string
	versionField   string

	// version is probed once during Start, before any connection is served.
	version string
}

// New creates a Service. Call Start before serving connections.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:         logger,
		client:         cfg.Client,
		loader:         cfg.Loader,
		registry:       cfg.Registry,
		cache:          cache.New(),
		audit:          cfg.Audit,
		orch:           orchestrate.New(cfg.Client, logger),
		tracer:         otel.Tracer("vergate/service"),
		defaultVersion: cfg.DefaultVersion,
		probePath:      cfg.ProbePath,
		versionField:   cfg.VersionField,
	}
}

// Start probes the remote API version. A failed probe falls back to the
// configured default with a warning; it is never fatal.
func (s *Service) Start(ctx context.Context) error {
	s.version = s.defaultVersion
	if s.probePath == "" {
		s.logger.Info("version probe disabled, using default",
			slog.String("version", s.version))
		return nil
	}

	detected, err := s.client.ProbeVersion(ctx, s.probePath, s.versionField)
	if err != nil {
		s.logger.Warn("version probe failed, falling back to default",
			slog.String("default", s.defaultVersion),
			slog.String("error", err.Error()))
		return nil
	}
	if _, err := registry.ParseVersion(detected); err != nil {
		// A malformed version would poison every later resolution; the
		// probe stays best-effort.
		s.logger.Warn("probed version is malformed, falling back to default",
			slog.String("probed", detected),
			slog.String("default", s.defaultVersion))
		return nil
	}

	s.version = detected
	s.logger.Info("remote API version detected", slog.String("version", detected))
	return nil
}

// Version returns the detected (or default) remote API version.
func (s *Service) Version() string { return s.version }

// Cache exposes the lookup cache, primarily for tests seeding entries.
func (s *Service) Cache() *cache.Cache { return s.cache }

// SupportedVersions returns every version discovered in the catalog.
func (s *Service) SupportedVersions() []string {
	return s.registry.SupportedVersions()
}

// Execute performs one logical operation (create, update, delete, find) on a
// resource. The incoming and outgoing data are caller-facing records.
func (s *Service) Execute(ctx context.Context, operation, resource string, data domain.Record) (domain.Record, error) {
	corrID := uuid.New().String()
	start := time.Now()
	logger := s.logger.With(
		slog.String("correlation_id", corrID),
		slog.String("operation", operation),
		slog.String("resource", resource))

	ctx, span := s.tracer.Start(ctx, "service.execute",
		trace.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("resource", resource),
			attribute.String("api_version", s.version)))
	defer span.End()

	logger.Info("operation started")

	result, version, err := s.execute(ctx, operation, resource, data)
	s.recordAudit(ctx, corrID, operation, resource, version, time.Since(start), err)

	if err != nil {
		se := domain.ToServiceError(err)
		logger.Error("operation failed",
			slog.String("phase", string(se.Phase)),
			slog.String("error_type", string(se.Type)),
			slog.String("error", se.Message),
			slog.Duration("duration", time.Since(start)))
		return nil, se
	}

	logger.Info("operation completed", slog.Duration("duration", time.Since(start)))
	return result, nil
}

func (s *Service) execute(ctx context.Context, operation, resource string, data domain.Record) (domain.Record, string, error) {
	op, err := domain.ParseOperation(operation)
	if err != nil {
		return nil, "", err
	}

	impl, err := s.loader.Load(resource, s.version)
	if err != nil {
		return nil, "", err
	}

	rec, err := impl.CallerSchema.NewRecord(data)
	if err != nil {
		return nil, impl.Version, err
	}

	tc := &convert.Context{
		Lookup:  s,
		Client:  s.client,
		Cache:   s.cache,
		Version: impl.Version,
		Results: make(map[string]domain.Record),
	}

	wire, err := impl.Converter.Forward(ctx, rec, tc)
	if err != nil {
		return nil, impl.Version, err
	}

	result, err := s.orch.Execute(ctx, impl.Operations, wire, tc, op)
	if err != nil {
		return nil, impl.Version, err
	}

	out, err := impl.Converter.Reverse(ctx, result, tc)
	if err != nil {
		return nil, impl.Version, err
	}
	return out, impl.Version, nil
}

func (s *Service) recordAudit(ctx context.Context, corrID, operation, resource, version string, duration time.Duration, opErr error) {
	if s.audit == nil {
		return
	}
	rec := &storage.OperationRecord{
		ID:            uuid.New().String(),
		CorrelationID: corrID,
		Operation:     operation,
		Resource:      resource,
		Version:       version,
		Status:        "ok",
		Duration:      duration,
	}
	if opErr != nil {
		se := domain.ToServiceError(opErr)
		rec.Status = "error"
		rec.ErrorType = string(se.Type)
		rec.ErrorMessage = se.Message
	}
	if err := s.audit.RecordOperation(ctx, rec); err != nil {
		s.logger.Error("failed to record audit entry", slog.String("error", err.Error()))
	}
}

// ResolveID returns the identifier for an entity name, consulting the cache
// first and populating both directions after a remote read.
func (s *Service) ResolveID(ctx context.Context, entity, lookupPath, name string) (any, error) {
	if id, ok := s.cache.GetID(entity, name); ok {
		return id, nil
	}
	id, resolvedName, err := s.remoteLookup(ctx, entity, lookupPath, domain.Record{"name": name})
	if err != nil {
		return nil, err
	}
	s.cache.PutLookup(entity, resolvedName, id)
	return id, nil
}

// ResolveName returns the name for an entity identifier.
func (s *Service) ResolveName(ctx context.Context, entity, lookupPath string, id any) (string, error) {
	if name, ok := s.cache.GetName(entity, id); ok {
		return name, nil
	}
	resolvedID, name, err := s.remoteLookup(ctx, entity, lookupPath, domain.Record{"id": id})
	if err != nil {
		return "", err
	}
	s.cache.PutLookup(entity, name, resolvedID)
	return name, nil
}

// remoteLookup issues one remote read and extracts the (id, name) pair from
// either a bare object or the first element of an "items" list.
func (s *Service) remoteLookup(ctx context.Context, entity, lookupPath string, query domain.Record) (any, string, error) {
	if lookupPath == "" {
		return nil, "", fmt.Errorf("no lookup path configured for entity %q", entity)
	}
	resp, err := s.client.Do(ctx, http.MethodGet, lookupPath, query)
	if err != nil {
		return nil, "", err
	}

	obj := resp
	if items, ok := resp["items"].([]any); ok {
		if len(items) == 0 {
			return nil, "", fmt.Errorf("%s lookup returned no matches", entity)
		}
		first, ok := items[0].(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("%s lookup returned malformed items", entity)
		}
		obj = first
	}

	id, okID := obj["id"]
	name, okName := obj["name"].(string)
	if !okID || !okName {
		return nil, "", fmt.Errorf("%s lookup response missing id or name", entity)
	}
	return id, name, nil
}
