package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/jwalitptl/notify-engine/internal/config"
	notificationHandler "github.com/jwalitptl/notify-engine/internal/handler/notification"
	webhookHandler "github.com/jwalitptl/notify-engine/internal/handler/webhook"
	"github.com/jwalitptl/notify-engine/internal/reconciler"
	"github.com/jwalitptl/notify-engine/internal/repository/postgres"
	"github.com/jwalitptl/notify-engine/internal/router"
	notificationService "github.com/jwalitptl/notify-engine/internal/service/notification"
	"github.com/jwalitptl/notify-engine/internal/template"
	"github.com/jwalitptl/notify-engine/pkg/logger"
	"github.com/jwalitptl/notify-engine/pkg/messaging"
	messagingRedis "github.com/jwalitptl/notify-engine/pkg/messaging/redis"
	"github.com/jwalitptl/notify-engine/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	var broker messaging.Broker = messaging.NopBroker{}
	if cfg.Redis.URL != "" {
		b, err := messagingRedis.NewRedisBroker(messagingRedis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, log.ZL())
		if err != nil {
			log.Fatal(err, "failed to connect to redis")
		}
		broker = b
		defer broker.Close()
	}

	m := metrics.New("notify")

	base := postgres.NewBaseRepository(db)
	queueRepo := postgres.NewQueueRepository(base)
	directoryRepo := postgres.NewDirectoryRepository(base)

	resolver := template.NewStoreResolver(directoryRepo)
	svc := notificationService.NewService(queueRepo, directoryRepo, resolver, broker, log, m)

	rec := reconciler.New(queueRepo, broker, log, m)
	rec.Register("sms", reconciler.SMSNormalizer{})
	rec.Register("whatsapp", reconciler.WhatsAppNormalizer{})
	rec.Register("email", reconciler.EmailNormalizer{})

	engine := router.New(router.Config{
		RateLimitPerSec: cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
		MetricsEnabled:  cfg.Monitoring.PrometheusEnabled,
	}, log, db,
		notificationHandler.NewHandler(svc),
		webhookHandler.NewHandler(rec),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting API server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "forced shutdown")
	}
	log.Info("server stopped")
}
