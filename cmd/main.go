package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/api"
	"ship-notification-service/internal/catalog"
	"ship-notification-service/internal/config"
	"ship-notification-service/internal/db"
	"ship-notification-service/internal/dedup"
	"ship-notification-service/internal/dispatch"
	"ship-notification-service/internal/incident"
	"ship-notification-service/internal/kafka"
	"ship-notification-service/internal/logging"
	"ship-notification-service/internal/memstore"
	"ship-notification-service/internal/notification"
	"ship-notification-service/internal/providers"
	"ship-notification-service/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		st    store
		lease scheduler.Lease
	)
	switch cfg.DB.Driver {
	case "memory":
		logger.Warn("Using in-memory store, state is lost on restart")
		st = memstore.New()
	default:
		dbConn, err := db.New(cfg.DB.DSN)
		if err != nil {
			logger.Fatalf("Database connection failed: %v", err)
		}
		defer dbConn.Close()
		if err := dbConn.Migrate(ctx); err != nil {
			logger.Fatalf("Database migration failed: %v", err)
		}
		st = dbConn
		if cfg.Scheduler.DistributedLock {
			lease = db.NewAdvisoryLease(dbConn, cfg.Scheduler.LockKey)
		}
	}

	cat, err := catalog.Load(ctx, st)
	if err != nil {
		logger.Fatalf("Catalog load failed: %v", err)
	}

	transport, err := providers.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Transport init failed: %v", err)
	}

	// Engine
	hub := api.NewHub(logger)
	renderer := dispatch.NewRenderer(cat, dispatch.LoadLocation(cfg.Notification.Timezone), cfg.Notification.AgentCode)
	dispatcher := dispatch.New(st, st, renderer, transport, logger)
	dispatcher.SetPublisher(hub)

	deduplicator := dedup.New(st, cat, logger)
	correlator := incident.New(st, st, deduplicator, logger)
	svc := notification.New(st, correlator, dispatcher, cat, cfg.Notification.MaxRetry, logger)

	sched := scheduler.New(st, deduplicator, dispatcher, scheduler.Options{
		Interval:    cfg.Scheduler.Interval,
		BatchSize:   cfg.Scheduler.BatchSize,
		MaxWorkers:  cfg.Scheduler.MaxWorkers,
		RetryFailed: cfg.Scheduler.RetryFailed,
	}, logger)
	if lease != nil {
		sched.SetLease(lease)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	// Kafka ingestion
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, svc, logger)
		consumer.Start(ctx, &wg)
		defer func() {
			if err := consumer.Close(); err != nil {
				logger.Errorf("Kafka consumer close failed: %v", err)
			}
		}()
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	// Start API server
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(svc, hub, logger, cfg.API.BasePath),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdown(srv, logger)
	wg.Wait()
	logger.Info("Service stopped")
}

func shutdown(srv *http.Server, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
}
