package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Tehnologistika/GdeGruz/internal/broker"
	"github.com/Tehnologistika/GdeGruz/internal/config"
	"github.com/Tehnologistika/GdeGruz/internal/drivers"
	"github.com/Tehnologistika/GdeGruz/internal/infra"
	"github.com/Tehnologistika/GdeGruz/internal/locations"
	"github.com/Tehnologistika/GdeGruz/internal/scheduler"
	"github.com/Tehnologistika/GdeGruz/internal/server"
	"github.com/Tehnologistika/GdeGruz/internal/store"
	"github.com/Tehnologistika/GdeGruz/internal/telegram"
	"github.com/Tehnologistika/GdeGruz/internal/trips"
)

func main() {
	config.LoadDotEnvUp(8)

	logger, _ := zap.NewProduction()
	if os.Getenv("APP_ENV") == "local" {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infraDeps, err := infra.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("infra init failed", zap.Error(err))
	}
	defer infraDeps.Close()

	// Счётчик номеров рейсов подтягивается к уже выданным номерам.
	tripsRepo := trips.NewRepo(infraDeps.PG, cfg.Trips.NumberPrefix)
	if err := tripsRepo.SeedCounter(ctx); err != nil {
		logger.Fatal("trip counter seed failed", zap.Error(err))
	}

	var notify *telegram.BotClient
	if cfg.Telegram.BotToken != "" {
		notify = telegram.NewBotClient(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.DispatcherChatID)
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is empty, notifications disabled")
	}

	var pub trips.Publisher
	if cfg.AMQP.URL != "" {
		p, err := broker.New(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Fatal("broker init failed", zap.Error(err))
		}
		defer p.Close()
		pub = p
	}

	var sweepNotify scheduler.Notifier
	if notify != nil {
		sweepNotify = notify
	}

	// Фоновый свипер: напоминания и эскалации по молчанию водителей.
	sweeper := scheduler.New(
		logger,
		scheduler.Config{
			SweepInterval: cfg.Scheduler.SweepInterval,
			RemindAfter:   cfg.Scheduler.RemindAfter,
			EscalateAfter: cfg.Scheduler.EscalateAfter,
			RetentionAge:  cfg.Scheduler.RetentionAge,
		},
		drivers.NewRepo(infraDeps.PG),
		locations.NewRepo(infraDeps.PG),
		store.NewEscalationStore(infraDeps.Redis, cfg.Scheduler.EscalateCooldown),
		sweepNotify,
	)
	go sweeper.Run(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.NewRouter(cfg, infraDeps, logger, notify, pub),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel() // останавливает свипер

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
