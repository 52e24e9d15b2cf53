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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaywire-systems/relaywire-stack/common/logging"
	"github.com/relaywire-systems/relaywire-stack/common/messaging"
	natsclient "github.com/relaywire-systems/relaywire-stack/common/messaging/nats"
	"github.com/relaywire-systems/relaywire-stack/common/middleware"
	"github.com/relaywire-systems/relaywire-stack/common/signing"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/config"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/engine"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/matcher"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/repository"
	"github.com/relaywire-systems/relaywire-stack/delivery/internal/webhook"
)

// dlqPublisher adapts the JetStream client to the engine's DLQPublisher.
type dlqPublisher struct {
	js *natsclient.JetStreamClient
}

func (p *dlqPublisher) Publish(ctx context.Context, subject string, data []byte) error {
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

	logger := logging.Setup("delivery", cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.ConnString())
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:  cfg.NATS.URL,
		Name: "relaywire-delivery",
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer js.Close()

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := js.CreateOrUpdateStream(setupCtx, natsclient.EventsStream); err != nil {
		setupCancel()
		log.Fatalf("Failed to create events stream: %v", err)
	}
	if _, err := js.CreateOrUpdateStream(setupCtx, natsclient.DeliveryDLQStream); err != nil {
		setupCancel()
		log.Fatalf("Failed to create DLQ stream: %v", err)
	}
	if _, err := js.CreateOrUpdateConsumer(setupCtx, natsclient.EventsStream.Name, natsclient.ConsumerConfig{
		Name:          messaging.ConsumerDeliveryWorkers,
		AckWait:       cfg.Delivery.AckWait,
		MaxDeliver:    cfg.Delivery.MaxDeliver,
		MaxAckPending: cfg.Delivery.MaxAckPending,
	}); err != nil {
		setupCancel()
		log.Fatalf("Failed to create delivery consumer: %v", err)
	}
	setupCancel()

	var signer *signing.Signer
	if cfg.Delivery.SigningSecret != "" {
		signer = signing.NewSigner(cfg.Delivery.SigningSecret)
	}
	sender := webhook.NewSender(cfg.Delivery.WebhookTimeout, signer)

	eng := engine.New(
		repo,
		matcher.New(logger),
		sender,
		&dlqPublisher{js: js},
		logger,
		cfg.Delivery.MaxRetries,
		cfg.Delivery.BackoffBase,
		cfg.Delivery.BackoffMax,
	)

	stop, err := js.ConsumeMessages(ctx, natsclient.EventsStream.Name, messaging.ConsumerDeliveryWorkers, eng.HandleMessage)
	if err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if status := messaging.CheckClientHealth(r.Context(), js); status.Error != "" {
			http.Error(w, "nats: "+status.Error, http.StatusServiceUnavailable)
			return
		}
		if err := repo.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "delivery service listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.InfoContext(ctx, "shutting down delivery service")
	stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "server shutdown error", logging.FieldError, err)
	}
}
