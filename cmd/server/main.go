package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recordsdesk/custody/pkg/custody"
	"github.com/recordsdesk/custody/pkg/custody/api"
	"github.com/recordsdesk/custody/pkg/custody/config"
	memoryrepo "github.com/recordsdesk/custody/pkg/custody/repo/memory"
)

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	serverConfig, err := config.Load()
	if err != nil {
		logger.Error("failed to load server configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	registry := prometheus.NewRegistry()

	var seedRepo *memoryrepo.Repository
	var extra []custody.Option
	if serverConfig.DatabaseType == "memory" {
		seedRepo = memoryrepo.New()
		extra = append(extra, custody.WithRepository(seedRepo))
	}
	extra = append(extra, custody.WithLogger(logger))

	svc, err := serverConfig.BuildService(ctx, registry, extra...)
	if err != nil {
		logger.Error("failed to build custody service", "err", err)
		os.Exit(1)
	}

	if seedRepo != nil {
		seedLocations(ctx, seedRepo, logger)
	}

	actorAuth := api.NewActorAuth(serverConfig.JWTSecret)
	handler := api.NewHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(actorAuth.RequireActor)
		r.Mount("/", handler.Routes())
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: r,
	}

	go func() {
		logger.Info("custody server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.StorageType)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("server exiting")
}

// seedLocations gives the in-memory deployment a small zone/box tree so
// moves work out of the box.
func seedLocations(ctx context.Context, repo *memoryrepo.Repository, logger *slog.Logger) {
	now := time.Now().UTC()
	zone := &custody.Location{ID: uuid.New(), Name: "Zone A", CreatedAt: now}
	if err := repo.CreateLocation(ctx, zone); err != nil {
		logger.Warn("failed to seed zone", "err", err)
		return
	}
	for _, name := range []string{"Box A-1", "Box A-2"} {
		box := &custody.Location{ID: uuid.New(), Name: name, ParentID: &zone.ID, CreatedAt: now}
		if err := repo.CreateLocation(ctx, box); err != nil {
			logger.Warn("failed to seed box", "name", name, "err", err)
			continue
		}
		logger.Info("seeded location", "id", box.ID, "name", box.Name, "zone", zone.ID)
	}
}
