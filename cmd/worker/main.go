package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/notify-engine/internal/config"
	"github.com/jwalitptl/notify-engine/internal/dispatcher"
	"github.com/jwalitptl/notify-engine/internal/model"
	"github.com/jwalitptl/notify-engine/internal/provider"
	"github.com/jwalitptl/notify-engine/internal/repository/postgres"
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

	m := metrics.New("notify_worker")
	queueRepo := postgres.NewQueueRepository(postgres.NewBaseRepository(db))

	registry := provider.NewRegistry()
	registerAdapters(registry, cfg, log)

	limiter := dispatcher.NewChannelLimiter(cfg.Dispatcher.ChannelPerSec, cfg.Dispatcher.ChannelBurst)
	backoff := dispatcher.NewBackoffPolicy(cfg.Dispatcher.BackoffBase, cfg.Dispatcher.BackoffCap, cfg.Dispatcher.BackoffJitter)

	d := dispatcher.New(queueRepo, registry, broker, limiter, backoff, dispatcher.Config{
		Workers:      cfg.Dispatcher.Workers,
		BatchSize:    cfg.Dispatcher.BatchSize,
		PollInterval: cfg.Dispatcher.PollInterval,
		SendTimeout:  cfg.Dispatcher.SendTimeout,
	}, log, m)

	sweeper := dispatcher.NewSweeper(queueRepo, cfg.Sweeper.Interval, cfg.Sweeper.Staleness, log, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}
	go func() {
		log.Info("starting worker metrics server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "forced metrics server shutdown")
	}
	log.Info("worker stopped")
}

// registerAdapters wires every channel whose provider is configured.
// Unconfigured channels stay unregistered; jobs for them are left for
// the staleness sweep and surface as resolve failures in the logs.
func registerAdapters(registry *provider.Registry, cfg *config.Config, log *logger.Logger) {
	if sms, err := provider.NewSMSAdapter(provider.SMSConfig{
		Endpoint: cfg.Providers.SMS.Endpoint,
		APIKey:   cfg.Providers.SMS.APIKey,
		Sender:   cfg.Providers.SMS.Sender,
		Timeout:  cfg.Providers.SMS.Timeout,
	}); err != nil {
		log.Warn("sms adapter not configured", "error", err.Error())
	} else {
		registry.Register(model.ChannelSMS, sms)
	}

	if wa, err := provider.NewWhatsAppAdapter(provider.WhatsAppConfig{
		Endpoint:    cfg.Providers.WhatsApp.Endpoint,
		AccessToken: cfg.Providers.WhatsApp.AccessToken,
		PhoneID:     cfg.Providers.WhatsApp.PhoneID,
		Timeout:     cfg.Providers.WhatsApp.Timeout,
	}); err != nil {
		log.Warn("whatsapp adapter not configured", "error", err.Error())
	} else {
		registry.Register(model.ChannelWhatsApp, wa)
	}

	if email, err := provider.NewEmailAdapter(provider.EmailConfig{
		Host:     cfg.Providers.Email.Host,
		Port:     cfg.Providers.Email.Port,
		Username: cfg.Providers.Email.Username,
		Password: cfg.Providers.Email.Password,
		From:     cfg.Providers.Email.From,
	}); err != nil {
		log.Warn("email adapter not configured", "error", err.Error())
	} else {
		registry.Register(model.ChannelEmail, email)
	}
}
