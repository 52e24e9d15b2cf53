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
	"github.com/redis/go-redis/v9"

	"github.com/relaywire-systems/relaywire-stack/common/apikeys"
	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/messaging"
	natsclient "github.com/relaywire-systems/relaywire-stack/common/messaging/nats"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/config"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/handlers"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/idempotency"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/ratelimit"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/repository"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/server"
	"github.com/relaywire-systems/relaywire-stack/ingest/internal/service"
)

// jsPublisher adapts the JetStream client to the service's Publisher.
type jsPublisher struct {
	js *natsclient.JetStreamClient
}

func (p *jsPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.PublishSync(ctx, subject, data)
	return err
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Setup("ingest", cfg.Logging.Level, cfg.Logging.Format)

	connString := cfg.Database.ConnString()

	logger.InfoContext(context.Background(), "running database migrations")
	m, err := migrate.New("file://migrations", connString)
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

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	idem := idempotency.NewWithClient(redisClient, cfg.Ingestion.IdempotencyTTL)
	limiter := ratelimit.NewWithClient(redisClient, cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow, time.Now)

	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:  cfg.NATS.URL,
		Name: "relaywire-ingest",
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer js.Close()

	streamCtx, streamCancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := js.CreateOrUpdateStream(streamCtx, natsclient.EventsStream); err != nil {
		streamCancel()
		log.Fatalf("Failed to create events stream: %v", err)
	}
	streamCancel()

	svc := service.NewIngestService(
		repo, idem, limiter, &jsPublisher{js: js}, logger,
		cfg.Ingestion.MaxEventSize, cfg.Ingestion.EventTTL,
	)
	svc.StartPurger(cfg.Ingestion.PurgeInterval)
	defer svc.Stop()

	eventsHandler := handlers.NewEventsHandler(svc, keys, logger, int64(cfg.Ingestion.MaxEventSize))
	healthHandler := handlers.NewHealthHandler(map[string]handlers.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"nats": func(ctx context.Context) error {
			status := messaging.CheckClientHealth(ctx, js)
			if status.Error != "" {
				return fmt.Errorf("nats: %s", status.Error)
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(eventsHandler, healthHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.InfoContext(ctx, "ingest service listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.InfoContext(ctx, "shutting down ingest service")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "server shutdown error", logging.FieldError, err)
	}
}
