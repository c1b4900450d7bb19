package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Varn22/pixel-time-tracker/internal/api"
	"github.com/Varn22/pixel-time-tracker/internal/auth"
	"github.com/Varn22/pixel-time-tracker/internal/cache"
	"github.com/Varn22/pixel-time-tracker/internal/config"
	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/observability"
	"github.com/Varn22/pixel-time-tracker/internal/outbox"
	"github.com/Varn22/pixel-time-tracker/internal/persistence/memory"
	"github.com/Varn22/pixel-time-tracker/internal/persistence/postgres"
	httptransport "github.com/Varn22/pixel-time-tracker/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger("pixel-tracker-api", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		store      domain.Repository
		dispatcher *outbox.Dispatcher
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data and events are lost on restart")
		store = memory.NewStore()
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewRepository(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, logger)
		defer producer.Close()

		var registry outbox.SchemaRegistrar = outbox.NewStaticRegistry()
		if cfg.SchemaRegistryURL != "" {
			registry = outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		}
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.Named("outbox")))
		go dispatcher.Start(ctx)
	}

	engine := domain.NewEngine(store,
		domain.Rules{XPPerLevel: cfg.XPPerLevel},
		domain.DefaultCatalog(cfg.Achievements),
		domain.WithEngineLogger(logger.Named("engine")))

	opts := []domain.ServiceOption{domain.WithServiceLogger(logger.Named("service"))}
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, stats caching disabled", zap.Error(err))
		} else {
			defer client.Close()
			opts = append(opts, domain.WithStatsCache(cache.NewRedisStatsCache(client, cfg.StatsCacheTTL)))
		}
	}
	service := domain.NewService(store, engine, opts...)

	mux := http.NewServeMux()
	api.NewHandler(service, logger.Named("api")).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := httptransport.Chain(mux,
		httptransport.Recover(logger),
		httptransport.RequestLogger(logger.Named("http")),
		httptransport.CORS(cfg.CORSOrigins...),
		auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret.Value(), Issuer: cfg.JWTIssuer}),
	)
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("address", cfg.HTTPAddress), zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil {
			cancel()
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
	return nil
}
