package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/mamadbah2/flockbook/internal/cache"
	"github.com/mamadbah2/flockbook/internal/config"
	"github.com/mamadbah2/flockbook/internal/farmtime"
	"github.com/mamadbah2/flockbook/internal/metrics"
	"github.com/mamadbah2/flockbook/internal/repository/mongodb"
	"github.com/mamadbah2/flockbook/internal/repository/redislock"
	"github.com/mamadbah2/flockbook/internal/scheduler"
	"github.com/mamadbah2/flockbook/internal/server/handlers"
	"github.com/mamadbah2/flockbook/internal/server/router"
	commandsvc "github.com/mamadbah2/flockbook/internal/service/commands"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
	"github.com/mamadbah2/flockbook/internal/service/reminders"
	whatsappsvc "github.com/mamadbah2/flockbook/internal/service/whatsapp"
	"github.com/mamadbah2/flockbook/pkg/clients/poultry"
	whatsappclient "github.com/mamadbah2/flockbook/pkg/clients/whatsapp"
	"github.com/mamadbah2/flockbook/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	tz, err := farmtime.New(cfg.Farm.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid farm timezone", zap.Error(err))
	}

	appMetrics := metrics.New()
	backend := poultry.NewClient(cfg.Backend)
	queryCache := cache.New(cfg.Farm.CacheTTL)

	coordOpts := []dailyentry.Option{
		dailyentry.WithCache(queryCache),
		dailyentry.WithRecorder(appMetrics),
		dailyentry.WithLocker(nil, cfg.Forms.LockTTL),
	}

	readiness := make(map[string]router.Pinger)
	if cfg.Redis.Enabled() {
		locker, err := redislock.New(context.Background(), cfg.Redis.URL, baseLogger.Named("repo.redislock"))
		if err != nil {
			baseLogger.Fatal("failed to init redis submission lock", zap.Error(err))
		}
		defer func() {
			if err := locker.Close(); err != nil {
				baseLogger.Error("failed to close redis connection", zap.Error(err))
			}
		}()
		coordOpts = append(coordOpts, dailyentry.WithLocker(locker, cfg.Forms.LockTTL))
		readiness["redis"] = locker
		baseLogger.Info("redis submission lock enabled")
	} else {
		baseLogger.Warn("redis url missing, submission lock is local to this process")
	}

	var history handlers.HistoryReader
	if cfg.MongoDB.Enabled() {
		journal, err := mongodb.NewMongoDBJournal(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName)
		if err != nil {
			baseLogger.Fatal("failed to init mongodb journal", zap.Error(err))
		}
		defer func() {
			if err := journal.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		coordOpts = append(coordOpts, dailyentry.WithJournal(journal))
		history = journal
		readiness["mongodb"] = journal
		baseLogger.Info("mongodb submission journal enabled")
	} else {
		baseLogger.Warn("mongodb uri missing, submissions are not journaled")
	}

	coordinator := dailyentry.NewCoordinator(backend, tz, baseLogger.Named("svc.dailyentry"), coordOpts...)

	formLogger := baseLogger.Named("svc.forms")
	registry := dailyentry.NewFormRegistry(coordinator, dailyentry.WithTransitionHook(func(from, to dailyentry.Status) {
		formLogger.Debug("form transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}))

	deps := router.Dependencies{
		Forms:     handlers.NewFormHandler(registry, tz, baseLogger.Named("handlers.forms")),
		Entries:   handlers.NewEntryHandler(coordinator, history, baseLogger.Named("handlers.entries")),
		Metrics:   appMetrics.Handler(),
		Observer:  appMetrics,
		Readiness: readiness,
	}

	purgers := []scheduler.Purger{queryCache}
	var notifier reminders.Notifier
	if cfg.WhatsApp.Enabled() {
		seen := cache.New(24 * time.Hour)
		purgers = append(purgers, seen)
		commandDispatcher := commandsvc.NewService(coordinator, tz, baseLogger.Named("svc.commands"))
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, baseLogger.Named("svc.whatsapp")).
			WithDeduplication(seen)
		deps.Webhook = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
		if cfg.WhatsApp.ManagerID != "" {
			notifier = messagingSvc
		}
		baseLogger.Info("whatsapp channel enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, webhook and reminders disabled")
	}

	engine := router.New(deps, baseLogger.Named("router"))

	var reminderSvc scheduler.ReminderRunner
	if notifier != nil {
		reminderSvc = reminders.NewService(backend, coordinator, notifier, appMetrics, tz, cfg.Reminders.LotStatus, baseLogger.Named("svc.reminders"))
	}

	sched := scheduler.NewScheduler(*cfg, tz, reminderSvc, registry, appMetrics, baseLogger.Named("scheduler")).
		WithPurgers(purgers...)
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("timezone", tz.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
