package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/card-notifier/internal/channel"
	"github.com/jwalitptl/card-notifier/internal/clock"
	"github.com/jwalitptl/card-notifier/internal/config"
	dmhandler "github.com/jwalitptl/card-notifier/internal/handler/delayedmessage"
	"github.com/jwalitptl/card-notifier/internal/handler/health"
	jobshandler "github.com/jwalitptl/card-notifier/internal/handler/jobs"
	promhandler "github.com/jwalitptl/card-notifier/internal/handler/prometheus"
	smshandler "github.com/jwalitptl/card-notifier/internal/handler/sms"
	"github.com/jwalitptl/card-notifier/internal/repository"
	"github.com/jwalitptl/card-notifier/internal/repository/memory"
	"github.com/jwalitptl/card-notifier/internal/repository/postgres"
	"github.com/jwalitptl/card-notifier/internal/router"
	"github.com/jwalitptl/card-notifier/internal/service/delayedmessage"
	"github.com/jwalitptl/card-notifier/internal/service/sentcard"
	"github.com/jwalitptl/card-notifier/internal/service/smsmessage"
	"github.com/jwalitptl/card-notifier/internal/service/summary"
	"github.com/jwalitptl/card-notifier/internal/worker"
	"github.com/jwalitptl/card-notifier/pkg/circuitbreaker"
	"github.com/jwalitptl/card-notifier/pkg/lock"
	"github.com/jwalitptl/card-notifier/pkg/logger"
	"github.com/jwalitptl/card-notifier/pkg/metrics"
)

const metricsNamespace = "card_notifier"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(cfg.Log.ToLoggerConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metricsNamespace, reg)
	clk := clock.Real{}

	checks := map[string]health.Check{}

	// Initialize storage
	stores, db, err := openStores(ctx, cfg, clk)
	if err != nil {
		appLog.Fatal(err, "failed to open storage", "driver", cfg.Storage.Driver)
	}
	if db != nil {
		defer db.Close()
		checks["database"] = db.PingContext
	}

	// Initialize job lock
	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		appLog.Fatal(err, "failed to create job locker", "driver", cfg.Lock.Driver)
	}
	defer closeLocker()
	if rl, ok := locker.(*lock.RedisLocker); ok {
		checks["redis"] = rl.Ping
	}

	// Initialize channels
	smsCh, emailCh := buildChannels(cfg, appLog, m)

	// Initialize services
	sender := smsmessage.NewSender(stores.SmsMessages, smsCh, clk)
	dispatcher := delayedmessage.NewService(
		stores.DelayedMessages, sender, emailCh, clk, appLog,
		delayedmessage.Config{MaxAttempts: cfg.Dispatcher.MaxAttempts},
	)
	notifier := sentcard.NewNotifier(
		smsmessage.NewIdleTracker(stores.SmsMessages, clk),
		stores.SmsMessages,
		sentcard.NewResolver(stores.SentCards, stores.Users, cfg.Undelivered.CacheTTL),
		emailCh, clk, appLog,
		sentcard.Config{
			IdleMinutes:       cfg.Undelivered.IdleMinutes,
			WatchedTypes:      cfg.Undelivered.Watched(),
			From:              cfg.Undelivered.From,
			FallbackRecipient: cfg.Undelivered.FallbackRecipient,
		},
	)
	scheduler := summary.NewScheduler(stores, emailCh, clk, appLog, summary.Config{
		Window:  cfg.Summary.Window,
		From:    cfg.Summary.From,
		Subject: cfg.Summary.Subject,
	})

	// Initialize jobs
	delayedJob := worker.DelayedMessagesJob(dispatcher, clk)
	undeliveredJob := worker.UndeliveredCardsJob(notifier)
	summaryJob := worker.DailySummaryJob(scheduler)

	runner := worker.NewRunner(locker, worker.Config{LockTTL: cfg.Lock.TTL}, appLog, m,
		delayedJob, undeliveredJob, summaryJob)

	var schedules []worker.Schedule
	for _, s := range []struct {
		job worker.Job
		cfg config.JobConfig
	}{
		{delayedJob, cfg.Jobs.DelayedMessages},
		{undeliveredJob, cfg.Jobs.Undelivered},
		{summaryJob, cfg.Jobs.DailySummary},
	} {
		if s.cfg.Enabled {
			schedules = append(schedules, worker.Schedule{Job: s.job, Interval: s.cfg.Interval})
		}
	}

	// Setup ops router
	r := router.NewRouter(appLog, promhandler.New(reg, metricsNamespace),
		health.NewHandler(checks),
		jobshandler.NewHandler(runner),
		smshandler.NewHandler(sender),
		dmhandler.NewHandler(dispatcher),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		appLog.Info("Starting ops server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error(err, "ops server failed")
			stop()
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Start(ctx, schedules)
	}()

	<-ctx.Done()
	appLog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "ops server forced to shutdown")
	}

	select {
	case <-done:
		appLog.Info("Worker exited properly")
	case <-shutdownCtx.Done():
		appLog.Warn("Jobs still running at shutdown deadline")
	}
}

func openStores(ctx context.Context, cfg *config.Config, clk clock.Clock) (repository.Stores, *sqlx.DB, error) {
	if cfg.Storage.Driver != "postgres" {
		return memory.NewStores(clk), nil, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return repository.Stores{}, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return repository.Stores{}, nil, err
	}
	return postgres.NewStores(db), db, nil
}

func openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Lock.Driver != "redis" {
		return lock.NewLocalLocker(), func() {}, nil
	}

	rl, err := lock.NewRedisLocker(ctx, cfg.ToLockConfig())
	if err != nil {
		return nil, nil, err
	}
	return rl, func() { _ = rl.Close() }, nil
}

func buildChannels(cfg *config.Config, appLog *logger.Logger, m *metrics.Metrics) (channel.SmsChannel, channel.EmailChannel) {
	var smsCh channel.SmsChannel
	var smsBreaker *circuitbreaker.CircuitBreaker
	if cfg.SMS.Mock {
		smsCh = channel.NewLogSMS(appLog)
	} else {
		smsCh = channel.RateLimitedSMS(
			channel.NewGatewaySMS(cfg.SMS.ToGatewayConfig(), appLog),
			rate.NewLimiter(rate.Limit(cfg.SMS.RatePerSec), cfg.SMS.Burst),
		)
		smsBreaker = circuitbreaker.NewCircuitBreaker(cfg.Jobs.Breaker.ToBreakerSettings(channel.NameSMS))
	}

	var emailCh channel.EmailChannel
	var emailBreaker *circuitbreaker.CircuitBreaker
	if cfg.SMTP.Mock {
		emailCh = channel.NewLogEmail(appLog)
	} else {
		emailCh = channel.NewSMTPEmail(cfg.SMTP.ToChannelConfig(), appLog)
		emailBreaker = circuitbreaker.NewCircuitBreaker(cfg.Jobs.Breaker.ToBreakerSettings(channel.NameEmail))
	}

	return channel.GuardedSMS(smsCh, smsBreaker, m), channel.GuardedEmail(emailCh, emailBreaker, m)
}
