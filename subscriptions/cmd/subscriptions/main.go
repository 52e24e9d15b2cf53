package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaywire-systems/relaywire-stack/common/apikeys"
	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/middleware"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/config"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/handlers"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/repository"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/server"
	"github.com/relaywire-systems/relaywire-stack/subscriptions/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Setup("subscriptions", cfg.Logging.Level, cfg.Logging.Format)

	connString := cfg.Database.ConnString()

	// Each service tracks its own migrations; a separate version table keeps
	// this service from clashing with ingest on the shared database.
	logger.InfoContext(context.Background(), "running database migrations")
	m, err := migrate.New("file://migrations", connString+"&x-migrations-table=subscriptions_schema_migrations")
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()

	repo, err := repository.NewPostgresRepository(ctx, connString)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		log.Fatalf("Failed to create auth pool: %v", err)
	}
	defer pool.Close()
	keys := apikeys.NewResolver(apikeys.NewPostgresStore(pool), cfg.Auth.KeyCacheTTL)

	svc := service.New(repo, logger)
	subsHandler := handlers.NewSubscriptionsHandler(svc, keys, logger)
	healthHandler := handlers.NewHealthHandler(repo.Ping)

	handler := server.NewRouter(subsHandler, healthHandler)
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		})(handler)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.InfoContext(ctx, "subscriptions service listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.InfoContext(ctx, "shutting down subscriptions service")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "server shutdown error", logging.FieldError, err)
	}
}
