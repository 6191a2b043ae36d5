// Package statusserver exposes a small HTTP surface for operators: liveness
// and the discovered version/resource matrix. It is optional and disabled by
// default; the caller-facing surface is the RPC channel, not HTTP.
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vergate/vergate/internal/registry"
	"github.com/vergate/vergate/internal/service"
)

// Server is the status HTTP server.
type Server struct {
	port     int
	logger   *slog.Logger
	registry *registry.Registry
	svc      *service.Service
	server   *http.Server
}

// New assembles the router with the standard middleware stack.
func New(port int, logger *slog.Logger, reg *registry.Registry, svc *service.Service) *Server {
	s := &Server{
		port:     port,
		logger:   logger,
		registry: reg,
		svc:      svc,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "vergate-status")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/versions", s.handleVersions)
	r.Get("/v1/resources", s.handleResources)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	s.logger.Info("status server listening", slog.Int("port", s.port))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{
		"status":      "ok",
		"api_version": s.svc.Version(),
	})
}

func (s *Server) handleVersions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"detected":  s.svc.Version(),
		"supported": s.registry.SupportedVersions(),
	})
}

func (s *Server) handleResources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.registry.Resources())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
