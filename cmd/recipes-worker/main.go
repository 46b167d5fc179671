// Recipes Worker — выполняет рецепты из очереди runs.requested.
//
// Worker:
//   - Получает запросы из RabbitMQ
//   - Поднимает общий контекст по context_name или создаёт свежий
//   - Выполняет рецепт и сохраняет run в PostgreSQL
//   - Публикует события движка в recipes.events
//
// Workers масштабируются горизонтально. Общий контекст живёт в памяти
// процесса, поэтому runs одного context_name стоит направлять в один worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Recipes/internal/config"
	"github.com/shaiso/Recipes/internal/contexts"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/orchestrator"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/steps"
	"github.com/shaiso/Recipes/internal/telemetry"
	"github.com/shaiso/Recipes/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting recipes-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
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
	logger.Info("database connected")

	// RabbitMQ
	mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL}, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	publisher := mq.NewPublisher(mqConn, logger)
	registry := steps.DefaultRegistry()
	compensator, err := orchestrator.NewCompensator(cfg.Rollback, registry)
	if err != nil {
		logger.Error("invalid rollback mode", "error", err)
		os.Exit(1)
	}
	engine := orchestrator.New(orchestrator.Config{
		Resolver: registry,
		Observers: []orchestrator.Observer{
			telemetry.NewMetrics(prometheus.DefaultRegisterer),
			publisher,
		},
		Compensator: compensator,
		Logger:      logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Runner:   engine,
		Runs:     repo.NewRunRepo(pool),
		Contexts: contexts.NewRegistry(repo.NewContextRepo(pool), logger),
		Conn:     mqConn,
		Logger:   logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte("rabbitmq disconnected"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.WorkerPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker, затем прерываем оставшиеся runs
	w.Stop()
	engine.Stop()
	logger.Info("recipes-worker stopped")
}
