package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Varn22/pixel-time-tracker/internal/config"
	"github.com/Varn22/pixel-time-tracker/internal/consumer"
	"github.com/Varn22/pixel-time-tracker/internal/notify"
	"github.com/Varn22/pixel-time-tracker/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "consumer: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger("pixel-tracker-consumer", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	var notifier notify.Notifier
	if cfg.TelegramBotToken.IsSet() {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken.Value(), cfg.NotifyTimeout,
			notify.WithLogger(logger.Named("telegram")),
			notify.WithRateLimit(cfg.NotifyRatePerSecond))
		if err != nil {
			return fmt.Errorf("connect to telegram: %w", err)
		}
		notifier = tg
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, notifications are logged only")
		notifier = notify.NewLogNotifier(logger.Named("notify"))
	}

	handler := consumer.Chain(
		consumer.NewPersistenceHandler(pool),
		consumer.NewNotificationHandler(notifier, cfg.NotifyTimeout, logger.Named("notify")),
	)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("consumer metrics listening", zap.String("address", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        10e6,
			MaxWait:         time.Second,
			CommitInterval:  0,
			ReadLagInterval: -1,
			ErrorLogger:     kafka.LoggerFunc(logger.Sugar().Named("kafka").Errorf),
		})
		topicLogger := logger.With(zap.String("topic", topic))
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			topicLogger.Info("consumer started", zap.String("group", cfg.ConsumerGroupID))
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.Error("consumer stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("consumer shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	wg.Wait()
	return nil
}
