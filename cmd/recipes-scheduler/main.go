// Recipes Scheduler — запускает рецепты по расписанию из конфигурации.
//
// Расписания отправляются в очередь runs.requested. Если RabbitMQ
// недоступен, рецепты выполняются прямо в процессе планировщика.
//
// Несколько экземпляров безопасны: тики выполняет только лидер,
// удерживающий pg_try_advisory_lock.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Recipes/internal/config"
	"github.com/shaiso/Recipes/internal/contexts"
	"github.com/shaiso/Recipes/internal/mq"
	"github.com/shaiso/Recipes/internal/orchestrator"
	"github.com/shaiso/Recipes/internal/repo"
	"github.com/shaiso/Recipes/internal/scheduler"
	"github.com/shaiso/Recipes/internal/steps"
	"github.com/shaiso/Recipes/internal/telemetry"
	"github.com/shaiso/Recipes/internal/worker"
)

const (
	schedLockKey int64 = 424242
	tickInterval       = time.Second
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting recipes-scheduler", "schedules", len(cfg.Schedules))

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
	logger.Info("db connected")

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Submitter: очередь или выполнение на месте
	var submitter scheduler.Submitter
	mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL}, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running recipes in-process", "error", err)
		submitter, err = localSubmitter(pool, cfg.Rollback, metrics, logger)
		if err != nil {
			logger.Error("failed to build local submitter", "error", err)
			os.Exit(1)
		}
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		submitter = scheduler.QueueSubmitter{Publisher: mq.NewPublisher(mqConn, logger)}
		logger.Info("RabbitMQ connected")
	}

	sched, err := scheduler.New(scheduler.Config{
		Schedules:  cfg.Schedules,
		RecipesDir: cfg.RecipesDir,
		Submitter:  submitter,
		State:      repo.NewScheduleRepo(pool),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("invalid schedules", "error", err)
		os.Exit(1)
	}
	if err := sched.Init(ctx); err != nil {
		logger.Error("failed to init schedules", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.SchedulerPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http error", "error", err)
			cancel()
		}
	}()

	runLeaderLoop(ctx, pool, sched, logger)
	logger.Info("recipes-scheduler stopped")
}

// runLeaderLoop вызывает Tick, пока процесс удерживает advisory lock.
// Lock сессионный, поэтому держится на одном выделенном соединении.
func runLeaderLoop(ctx context.Context, pool *pgxpool.Pool, sched *scheduler.Scheduler, logger *slog.Logger) {
	tk := time.NewTicker(tickInterval)
	defer tk.Stop()

	var lockConn *pgxpool.Conn
	defer func() {
		if lockConn != nil {
			_, _ = lockConn.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			lockConn.Release()
		}
	}()

	for {
		select {
		case <-tk.C:
			// пытаемся стать лидером (или подтвердить лидерство)
			if lockConn == nil {
				conn, err := pool.Acquire(ctx)
				if err != nil {
					logger.Error("acquire lock connection", "error", err)
					continue
				}
				var ok bool
				if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil || !ok {
					if err != nil {
						logger.Error("lock error", "error", err)
					}
					conn.Release()
					continue
				}
				lockConn = conn
				logger.Info("became scheduler leader")
			}

			if err := sched.Tick(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scheduler tick failed", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// localSubmitter собирает in-process worker без очереди.
func localSubmitter(pool *pgxpool.Pool, rollback string, metrics *telemetry.Metrics, logger *slog.Logger) (scheduler.Submitter, error) {
	registry := steps.DefaultRegistry()
	compensator, err := orchestrator.NewCompensator(rollback, registry)
	if err != nil {
		return nil, err
	}
	engine := orchestrator.New(orchestrator.Config{
		Resolver:    registry,
		Observers:   []orchestrator.Observer{metrics},
		Compensator: compensator,
		Logger:      logger,
	})
	return scheduler.LocalSubmitter{Processor: worker.New(worker.Config{
		Runner:   engine,
		Runs:     repo.NewRunRepo(pool),
		Contexts: contexts.NewRegistry(repo.NewContextRepo(pool), logger),
		Logger:   logger,
	})}, nil
}
