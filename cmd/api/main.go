package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/auramed/opd-queue/internal/api/router"
	appconfig "github.com/auramed/opd-queue/internal/config"
	"github.com/auramed/opd-queue/internal/intake"
	"github.com/auramed/opd-queue/internal/locker"
	"github.com/auramed/opd-queue/internal/notify"
	"github.com/auramed/opd-queue/internal/observability/metrics"
	"github.com/auramed/opd-queue/internal/queue"
	"github.com/auramed/opd-queue/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting opd-queue API server", "env", cfg.Env, "port", cfg.Port)

	queueMetrics := metrics.NewQueueMetrics(prometheus.DefaultRegisterer)

	// Storage: Postgres in production, in-memory for dev runs.
	var repo queue.Repository
	var outbox *notify.Outbox
	if cfg.UseMemoryStore || cfg.DatabaseURL == "" {
		logger.Warn("using in-memory store; state is lost on restart")
		repo = queue.NewInMemoryRepository()
	} else {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo = queue.NewPostgresRepository(pool)

		outbox, err = notify.OpenOutbox(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open message outbox", "error", err)
			os.Exit(1)
		}
	}

	// Session locking: Redis when configured, in-process otherwise.
	var locks locker.SessionLocker = locker.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis ping failed", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		locks = locker.NewRedisLocker(client, cfg.LockTTL)
		logger.Info("session locking via redis", "addr", cfg.RedisAddr)
	}

	notifier := notify.NewService(notify.ServiceConfig{
		SMS:         notify.NewLogSMSSender(logger.Named("sms")),
		Email:       emailSender(cfg, logger),
		Outbox:      outbox,
		StaffEmails: cfg.StaffAlertEmails,
		Metrics:     queueMetrics,
		Logger:      logger.Named("notify"),
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if outbox != nil {
		go redeliverLoop(sweepCtx, notifier, logger.Named("notify"))
	}

	svc := queue.NewService(queue.ServiceConfig{
		Repo:     repo,
		Locks:    locks,
		Notifier: notifier,
		Alerts:   notifier,
		Metrics:  queueMetrics,
		Logger:   logger.Named("queue"),
		Defaults: queue.SessionDefaults{
			StartTimeLocal:          cfg.SessionStartLocal,
			EndTimeLocal:            cfg.SessionEndLocal,
			SlotMinutes:             cfg.SlotMinutes,
			MicroBufferMinutes:      cfg.MicroBufferMinutes,
			BreakEveryN:             cfg.BreakEveryN,
			BreakMinutes:            cfg.BreakMinutes,
			EmergencyReserveMinutes: cfg.EmergencyReserveMinutes,
		},
	})

	classifier := intake.NewClassifier()
	queueHandler := queue.NewHandler(svc, classifier, cfg.DefaultClinicID, cfg.DefaultDoctorID, logger.Named("http"))
	intakeHandler := intake.NewHandler(classifier)

	r := router.New(&router.Config{
		Logger:             logger,
		QueueHandler:       queueHandler,
		IntakeHandler:      intakeHandler,
		MetricsHandler:     promhttp.Handler(),
		StaffAuthSecret:    cfg.StaffJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// redeliverLoop periodically retries outbox messages that were recorded but
// never confirmed sent, covering SMS failures and crashes mid-send.
func redeliverLoop(ctx context.Context, svc *notify.Service, logger *logging.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.RedeliverPending(ctx, 50)
			if err != nil {
				logger.Error("outbox redelivery sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("redelivered pending messages", "count", n)
			}
		}
	}
}

func emailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger.Named("email"))
	if sender == nil {
		return notify.NewStubEmailSender(logger.Named("email"))
	}
	return sender
}
