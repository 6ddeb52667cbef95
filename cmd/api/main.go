package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/estatechat/platform/cmd/mainconfig"
	"github.com/estatechat/platform/internal/api/router"
	"github.com/estatechat/platform/internal/billing"
	appconfig "github.com/estatechat/platform/internal/config"
	"github.com/estatechat/platform/internal/conversation"
	"github.com/estatechat/platform/internal/events"
	"github.com/estatechat/platform/internal/leads"
	"github.com/estatechat/platform/internal/notify"
	"github.com/estatechat/platform/internal/observability/metrics"
	"github.com/estatechat/platform/internal/widget"
	"github.com/estatechat/platform/pkg/logging"
)

func main() {
	// Load .env if present (local development only)
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting estatechat API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chatMetrics := metrics.NewChatMetrics(prometheus.DefaultRegisterer)

	// Storage. Without a DATABASE_URL everything runs in memory, which is
	// enough for local widget development.
	var (
		convRepo conversation.Repository    = conversation.NewInMemoryRepository()
		leadRepo leads.Repository           = leads.NewInMemoryRepository()
		recorder events.Recorder            = events.NewMemoryRecorder()
		settings notify.TenantSettingsStore = &notify.StaticSettingsStore{}
		gate     billing.Gate               = billing.AlwaysAllow{}
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		convRepo = conversation.NewPostgresRepository(pool)
		leadRepo = leads.NewPostgresRepository(pool)
		recorder = events.NewPostgresRecorder(pool)
		settings = notify.NewPostgresSettingsStore(pool)

		gateDB, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open billing db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = gateDB.Close() }()
		gate = billing.NewSubscriptionGate(gateDB, logger)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	var stateCache *conversation.StateCache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		stateCache = conversation.NewStateCache(redis.NewClient(opts), nil)
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var queue notify.Queue
	if cfg.UseMemoryQueue {
		queue = notify.NewMemoryQueue(256)
	} else {
		queue = notify.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL)
	}

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			sender = s
		}
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			sender = s
		}
	}
	if sender == nil {
		logger.Warn("email sending disabled, using stub sender", "provider", cfg.EmailProvider)
		sender = notify.NewStubEmailSender(logger)
	}

	notifyService := notify.NewService(notify.ServiceOptions{
		Email:            sender,
		Settings:         settings,
		Metrics:          chatMetrics,
		Logger:           logger,
		DashboardBaseURL: cfg.PublicBaseURL,
		SendTimeout:      cfg.NotifySendTimeout,
	})
	publisher := notify.NewPublisher(queue, logger)
	dispatcher := notify.NewDispatcher(queue, notifyService, cfg.NotifyWorkerCount, logger)
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	convService := conversation.NewService(conversation.ServiceOptions{
		Repo:             convRepo,
		LeadRepo:         leadRepo,
		Recorder:         recorder,
		Publisher:        publisher,
		Cache:            stateCache,
		Metrics:          chatMetrics,
		Logger:           logger,
		MaxMessageLength: cfg.MaxMessageLength,
	})

	routerCfg := &router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(convService, gate, logger),
		LeadsHandler:        leads.NewHandler(leadRepo, notifyService, logger),
		WidgetHandler:       widget.NewHandler(convService, gate, recorder, logger),
		MetricsHandler:      promhttp.Handler(),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop the notification dispatcher after the server drains so in-flight
	// turns can still enqueue alerts.
	cancel()
	select {
	case <-dispatcherDone:
		logger.Info("notification dispatcher stopped")
	case <-shutdownCtx.Done():
		logger.Error("notification dispatcher shutdown timed out")
	}

	logger.Info("server stopped")
}
