// Command scheduler starts the job scheduler HTTP API, dispatch loop, and
// orphan sweeper as a single process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/job-scheduler/internal/adapter/events"
	httpserver "github.com/fairyhunter13/job-scheduler/internal/adapter/httpserver"
	"github.com/fairyhunter13/job-scheduler/internal/adapter/observability"
	"github.com/fairyhunter13/job-scheduler/internal/adapter/registry"
	"github.com/fairyhunter13/job-scheduler/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/job-scheduler/internal/adapter/workerrpc"
	"github.com/fairyhunter13/job-scheduler/internal/app"
	"github.com/fairyhunter13/job-scheduler/internal/config"
	"github.com/fairyhunter13/job-scheduler/internal/domain"
	"github.com/fairyhunter13/job-scheduler/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.StoreURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	store := postgres.NewStore(pool)

	var workerRegistry domain.WorkerRegistry
	var redisClient *redis.Client
	switch cfg.RegistryBackend {
	case "redis":
		redisClient = redis.NewClient(mustParseRedisURL(cfg.RedisURL))
		workerRegistry = registry.NewRedis(redisClient, cfg.HeartbeatTTL())
		slog.Info("worker registry backend: redis")
	default:
		workerRegistry = registry.NewMemory(cfg.HeartbeatTTL())
		slog.Info("worker registry backend: memory")
	}

	if seed, err := app.LoadWorkerSeedFile(cfg.WorkerSeedFile); err != nil {
		slog.Error("failed to load worker seed file", slog.Any("error", err))
	} else if seed != nil {
		app.SeedWorkers(workerRegistry, seed)
		slog.Info("seeded workers from file", slog.String("path", cfg.WorkerSeedFile), slog.Int("count", len(seed.Workers)))
	}

	var publisher *events.Publisher
	if cfg.SchedulerEventsTopic != "" {
		publisher, err = events.NewPublisher(cfg.KafkaBrokers, cfg.SchedulerEventsTopic)
		if err != nil {
			slog.Error("events publisher disabled: connect failed", slog.Any("error", err))
		} else {
			defer publisher.Close()
		}
	}

	admission := usecase.NewAdmissionService(store, cfg.PerJobEstimate())
	status := usecase.NewStatusService(store)

	dispatcher := &usecase.Dispatcher{
		Store:            store,
		Registry:         workerRegistry,
		Worker:           workerrpc.NewClient(cfg.WorkerTimeout()),
		IdlePollInterval: cfg.IdlePollInterval(),
		ErrorBackoff:     cfg.ErrorBackoff(),
		OnTerminal: func(job domain.Job) {
			if publisher != nil {
				publisher.Publish(context.Background(), job)
			}
		},
	}

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	go dispatcher.Run(dispatchCtx)

	sweeper := app.NewOrphanSweeper(store, cfg.WorkerTimeout()+cfg.OrphanSweepInterval, cfg.OrphanSweepInterval)
	sweeperCtx, cancelSweeper := context.WithCancel(ctx)
	go sweeper.Run(sweeperCtx)

	dbCheck := app.BuildDBCheck(pool)
	redisCheck := app.BuildRedisCheck(redisClient)
	readyCheck := app.CombineChecks(dbCheck, redisCheck)

	srv := httpserver.NewServer(cfg, admission, status, workerRegistry, store, readyCheck)
	handler := app.BuildRouter(cfg, srv)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.String("addr", cfg.Addr()))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	cancelDispatch()
	cancelSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

func mustParseRedisURL(raw string) *redis.Options {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		slog.Error("invalid REDIS_URL, falling back to default", slog.Any("error", err))
		return &redis.Options{Addr: "localhost:6379"}
	}
	return opts
}
