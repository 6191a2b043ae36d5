package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vergate/vergate/internal/apiclient"
	"github.com/vergate/vergate/internal/config"
	"github.com/vergate/vergate/internal/loader"
	"github.com/vergate/vergate/internal/registry"
	"github.com/vergate/vergate/internal/rpc"
	"github.com/vergate/vergate/internal/service"
	"github.com/vergate/vergate/internal/statusserver"
	"github.com/vergate/vergate/internal/storage"
	"github.com/vergate/vergate/internal/storage/memory"
	"github.com/vergate/vergate/internal/storage/sqlite"
	"github.com/vergate/vergate/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("vergate", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	audit, err := newAuditStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open audit store: %v", err)
	}
	defer audit.Close()

	reg := registry.New(cfg.Catalog.Root+"/versions", logger)
	if err := reg.Discover(); err != nil {
		log.Fatalf("Version discovery failed: %v", err)
	}

	client := apiclient.New(cfg.API.BaseURL,
		apiclient.WithTimeout(config.Duration(cfg.API.Timeout, 30*time.Second)),
		apiclient.WithUserAgent(cfg.API.UserAgent))

	svc := service.New(service.Config{
		Client:         client,
		Loader:         loader.New(cfg.Catalog.Root, reg, logger),
		Registry:       reg,
		Audit:          audit,
		Logger:         logger,
		DefaultVersion: cfg.API.DefaultVersion,
		ProbePath:      cfg.API.ProbePath,
		VersionField:   cfg.API.VersionField,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}

	server, err := rpc.NewServer(svc, rpc.ServerConfig{
		SocketPath:     cfg.Server.SocketPath,
		DescriptorPath: cfg.Server.DescriptorPath,
		MaxConns:       cfg.Server.MaxConns,
		ReadTimeout:    config.Duration(cfg.Server.ReadTimeout, 60*time.Second),
		WriteTimeout:   config.Duration(cfg.Server.WriteTimeout, 60*time.Second),
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("Failed to create rpc server: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start rpc server: %v", err)
	}

	var status *statusserver.Server
	if cfg.Debug.Port > 0 {
		status = statusserver.New(cfg.Debug.Port, logger, reg, svc)
		status.Start()
	}

	logger.Info("vergate started",
		slog.String("socket", cfg.Server.SocketPath),
		slog.String("api", cfg.API.BaseURL),
		slog.String("api_version", svc.Version()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if status != nil {
		if err := status.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown error", slog.String("error", err.Error()))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc server shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newAuditStore(cfg *config.Config) (storage.AuditStore, error) {
	switch cfg.Storage.Type {
	case "sqlite":
		return sqlite.New(cfg.Storage.SQLite.Path)
	default:
		return memory.New(), nil
	}
}
