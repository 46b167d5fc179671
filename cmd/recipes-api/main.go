// Recipes API — HTTP API для проверки и запуска рецептов.
//
// API:
//   - Проверяет рецепты без выполнения
//   - Выполняет рецепты синхронно или отправляет в очередь runs.requested
//   - Отдаёт сохранённые runs и общие контексты
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Recipes/internal/api"
	"github.com/shaiso/Recipes/internal/config"
	"github.com/shaiso/Recipes/internal/contexts"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/orchestrator"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/steps"
	"github.com/shaiso/Recipes/internal/telemetry"
)

var startTime = time.Now()

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting recipes-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	observers := []orchestrator.Observer{telemetry.NewMetrics(prometheus.DefaultRegisterer)}

	// RabbitMQ опционален: без него недоступен async и не публикуются события
	handlerCfg := api.Config{
		Runs:     repo.NewRunRepo(pool),
		Contexts: contexts.NewRegistry(repo.NewContextRepo(pool), logger),
		Metrics:  api.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Logger:   logger,
	}
	mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL}, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, async runs disabled", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher := mq.NewPublisher(mqConn, logger)
		handlerCfg.Publisher = publisher
		observers = append(observers, publisher)
		logger.Info("RabbitMQ connected")
	}

	registry := steps.DefaultRegistry()
	compensator, err := orchestrator.NewCompensator(cfg.Rollback, registry)
	if err != nil {
		logger.Error("invalid rollback mode", "error", err)
		os.Exit(1)
	}
	engine := orchestrator.New(orchestrator.Config{
		Resolver:    registry,
		Observers:   observers,
		Compensator: compensator,
		Logger:      logger,
	})
	handlerCfg.Engine = engine

	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := config.Addr(cfg.APIPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Активные синхронные runs отменяются между шагами
	engine.Stop()

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
